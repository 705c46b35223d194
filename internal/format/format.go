// Package format turns verified webhook events into single IRC lines.
package format

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/LordAkkarin/DeadCodeBot/internal/event"
)

type formatter func(p event.Payload) string

var (
	sourceHost = map[string]formatter{
		"commit_comment":              commitComment,
		"fork":                        fork,
		"issue_comment":               issueComment,
		"issues":                      issues,
		"member":                      member,
		"ping":                        ping,
		"pull_request":                pullRequest,
		"pull_request_review_comment": pullRequestReviewComment,
		"push":                        push,
		"release":                     release,
	}

	tracker = map[string]formatter{
		"jira:issue_created": jiraIssue("created"),
		"jira:issue_deleted": jiraIssue("deleted"),
		"jira:issue_updated": jiraIssue("updated"),
	}
)

// Format renders ev as one notification line. ok is false when no formatter
// is registered for the event kind; that is not an error.
func Format(ev event.Verified) (text string, ok bool) {
	var table map[string]formatter
	switch ev.Provider {
	case event.SourceHost:
		table = sourceHost
	case event.Tracker:
		table = tracker
	default:
		return "", false
	}

	f, ok := table[ev.Kind]
	if !ok {
		return "", false
	}
	return f(ev.Payload), true
}

// field reads a payload string with any formatting bytes removed.
func field(p event.Payload, path string) string {
	return Clean(p.String(path))
}

func label(name string) string {
	return "[" + Wrap(DarkBlue, name) + "]"
}

func repo(p event.Payload) string {
	return label(field(p, "repository.name"))
}

func actor(name string) string {
	return Wrap(DarkGreen, name)
}

func ref(text string) string {
	return Wrap(DarkRed, text)
}

func title(text string) string {
	return `"` + Wrap(Orange, text) + `"`
}

func link(url string) string {
	return Wrap(DarkBlue, url)
}

func commitComment(p event.Payload) string {
	return repo(p) + " " + actor(field(p, "comment.user.login")) +
		" commented on commit " + ref(field(p, "comment.commit_id")) +
		": " + link(field(p, "comment.html_url"))
}

func fork(p event.Payload) string {
	return repo(p) + " The repository has been forked to " + actor(field(p, "forkee.full_name")) +
		": " + link(field(p, "forkee.html_url"))
}

func issueComment(p event.Payload) string {
	return repo(p) + " " + actor(field(p, "comment.user.login")) +
		" commented on issue " + title(field(p, "issue.title")) +
		" " + ref("#"+field(p, "issue.number")) +
		": " + link(field(p, "comment.html_url"))
}

func issues(p event.Payload) string {
	return repo(p) + " " + actor(field(p, "issue.user.login")) +
		" " + field(p, "action") + " issue " + title(field(p, "issue.title")) +
		" " + ref("#"+field(p, "issue.number")) +
		": " + link(field(p, "issue.html_url"))
}

func member(p event.Payload) string {
	return repo(p) + " " + actor(field(p, "member.login")) +
		" was added to the list collaborators: " + ref(field(p, "member.html_url"))
}

func ping(p event.Payload) string {
	return label("GitHub") + " Received WebHook installation ping: " + link(field(p, "zen"))
}

func pullRequest(p event.Payload) string {
	action := field(p, "action")
	if action == "synchronize" {
		action = "synchronized"
	}
	return repo(p) + " " + actor(field(p, "pull_request.user.login")) +
		" " + action + " a pull request " + title(field(p, "pull_request.title")) +
		" " + ref("#"+field(p, "number")) +
		": " + link(field(p, "pull_request.html_url"))
}

func pullRequestReviewComment(p event.Payload) string {
	return repo(p) + " " + actor(field(p, "comment.user.login")) +
		" commented on a diff of pull request " + ref("#"+field(p, "pull_request.number")) +
		" " + title(field(p, "pull_request.title")) +
		": " + link(field(p, "comment.html_url"))
}

// push reports the commit count. A missing size field means one commit.
func push(p event.Payload) string {
	count := int64(1)
	if p.Has("size") {
		count = p.Get("size").Int()
	}

	noun := "commits have"
	if count == 1 {
		noun = "commit has"
	}

	return repo(p) + " " + actor(strconv.FormatInt(count, 10)) +
		" " + noun + " been pushed to " + ref(field(p, "ref")) +
		": " + link(field(p, "compare"))
}

func release(p event.Payload) string {
	return repo(p) + " " + actor(field(p, "release.author.login")) +
		" " + field(p, "action") + " release " +
		ref(field(p, "release.name")+" ("+field(p, "release.tag_name")+")") +
		": " + link(field(p, "release.html_url"))
}

var restAPISuffix = regexp.MustCompile(`(?i)^(.*)/rest/api.*$`)

// jiraBaseURL strips the REST path from an issue's self link.
func jiraBaseURL(self string) string {
	return restAPISuffix.ReplaceAllString(self, "${1}")
}

func jiraIssue(verb string) formatter {
	return func(p event.Payload) string {
		key := field(p, "issue.key")
		browse := strings.TrimSuffix(jiraBaseURL(field(p, "issue.self")), "/") + "/browse/" + key

		return label("JIRA") + " " + actor(field(p, "user.displayName")) +
			" " + verb + " the issue " +
			ref(`"`+field(p, "issue.fields.summary")+`" (`+key+")") +
			": " + link(browse)
	}
}
