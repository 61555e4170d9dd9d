// Package present formats records for people reading a terminal.
package present

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/bit101/go-ansi"
	"github.com/ryanuber/columnize"
	"github.com/zvonler/threadgrab/batch"
	"github.com/zvonler/threadgrab/database"
	"github.com/zvonler/threadgrab/model"
	"golang.org/x/term"
)

// Renderer writes its output to w, with ANSI colors when color is set.
type Renderer func(w io.Writer, color bool)

// Show pages colored output through less when stdout is a terminal and
// prints plain text otherwise.
func Show(render Renderer) error {
	isTty := term.IsTerminal(int(os.Stdout.Fd()))
	if !isTty {
		render(os.Stdout, false)
		return nil
	}

	less, err := exec.LookPath("less")
	if err != nil {
		render(os.Stdout, true)
		return nil
	}

	cmd := exec.Command(less, "-FRX")
	cmd.Stdout = os.Stdout
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	go func() {
		defer stdin.Close()
		render(stdin, true)
	}()
	return cmd.Run()
}

type printer struct {
	w     io.Writer
	color bool
}

func (p printer) plain(format string, a ...any) {
	fmt.Fprintf(p.w, format, a...)
}

func (p printer) yellow(format string, a ...any) {
	if p.color {
		ansi.Fprintf(p.w, ansi.Yellow, format, a...)
		return
	}
	p.plain(format, a...)
}

func (p printer) red(format string, a ...any) {
	if p.color {
		ansi.Fprintf(p.w, ansi.Red, format, a...)
		return
	}
	p.plain(format, a...)
}

func (p printer) cyan(format string, a ...any) {
	if p.color {
		ansi.Fprintf(p.w, ansi.Cyan, format, a...)
		return
	}
	p.plain(format, a...)
}

func (p printer) green(format string, a ...any) {
	if p.color {
		ansi.Fprintf(p.w, ansi.Green, format, a...)
		return
	}
	p.plain(format, a...)
}

func (p printer) rule(s string) {
	if p.color {
		ansi.Fprintln(p.w, ansi.Blue, s)
		return
	}
	fmt.Fprintln(p.w, s)
}

func or(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}

func Topics(topics []model.Topic) Renderer {
	return func(w io.Writer, color bool) {
		p := printer{w, color}
		for _, t := range topics {
			p.yellow("%s", t.Title)
			if t.Author != nil {
				p.plain(" by ")
				p.red("%s", *t.Author)
			}
			if t.Date != nil {
				p.plain(" ")
				p.green("%s", *t.Date)
			}
			p.plain("\n")
			p.cyan("%s\n", t.URL)
		}
	}
}

func Thread(thread model.Thread) Renderer {
	return func(w io.Writer, color bool) {
		p := printer{w, color}
		p.yellow("%s", thread.TitleOr("(untitled)"))
		p.plain(" (")
		p.cyan("%s", thread.URL)
		p.plain(")\n")
		p.rule("========")

		for _, post := range thread.Posts {
			p.red("%s", or(post.Author, "unknown"))
			if post.Date != nil {
				p.plain(" ")
				p.green("%s", *post.Date)
			}
			p.plain(":\n%s\n", post.Content)
			p.rule("--------")
		}
	}
}

func Matches(matches []database.PostMatch) Renderer {
	return func(w io.Writer, color bool) {
		p := printer{w, color}
		for _, m := range matches {
			p.cyan("%s ", m.ThreadURL)
			p.yellow("%s\n", or(m.Title, "(untitled)"))
			p.red("%s", or(m.Post.Author, "unknown"))
			p.plain(": ")
			p.green("\"")
			p.plain("%s", m.Post.Content)
			p.green("\"\n")
			p.rule("--------")
		}
	}
}

func cell(s string) string {
	return strings.ReplaceAll(s, "|", "/")
}

// ThreadTable lays out archived threads in columns.
func ThreadTable(rows []database.ThreadRow) string {
	output := []string{
		"Extracted | Posts | Title | URL",
	}
	for _, r := range rows {
		output = append(output, fmt.Sprintf("%s | %d | %s | %s",
			r.Extracted.Format("2006-01-02 15:04"), r.Posts, cell(or(r.Title, "-")), r.URL))
	}
	return columnize.SimpleFormat(output)
}

func AuthorTable(rows []database.AuthorRow) string {
	output := []string{
		"Site | Username | Posts | Threads",
	}
	for _, r := range rows {
		output = append(output, fmt.Sprintf("%s | %s | %d | %d", r.Hostname, cell(r.Username), r.Posts, r.Threads))
	}
	return columnize.SimpleFormat(output)
}

func GroupTable(rows []database.GroupRow) string {
	output := []string{
		"Last extracted | Threads | URL",
	}
	for _, r := range rows {
		output = append(output, fmt.Sprintf("%s | %d | %s",
			r.LastExtracted.Format("2006-01-02 15:04"), r.Threads, r.URL))
	}
	return columnize.SimpleFormat(output)
}

// ReportTable summarizes a batch run in columns.
func ReportTable(r batch.Report) string {
	output := []string{
		"Groups | Skipped groups | Persisted | Failed | Skipped URLs",
		fmt.Sprintf("%d | %d | %d | %d | %d", r.Groups, r.GroupsSkipped, r.Persisted, r.Failed, r.URLsSkipped),
	}
	return columnize.SimpleFormat(output)
}
