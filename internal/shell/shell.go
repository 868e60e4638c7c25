// Package shell is the interactive front end: one command per line, and the
// active view is redrawn after every command.
package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"local.dev/postboard/internal/app"
	"local.dev/postboard/internal/comments"
	"local.dev/postboard/internal/models"
	"local.dev/postboard/internal/view"
)

// ErrQuit ends Run.
var ErrQuit = errors.New("quit")

type form struct {
	title     string
	content   string
	imagePath string
}

type Shell struct {
	s        *app.Session
	out      io.Writer
	now      func() time.Time
	readFile func(string) ([]byte, error)

	mu   sync.Mutex // serializes writes to out
	form form
	wg   sync.WaitGroup
}

func New(s *app.Session, out io.Writer) *Shell {
	return &Shell{s: s, out: out, now: time.Now, readFile: os.ReadFile}
}

// Run reads commands from in until EOF, "quit" or ctx is done. Comment
// submissions run in the background and are waited for before returning.
func (sh *Shell) Run(ctx context.Context, in io.Reader) error {
	defer sh.wg.Wait()
	sh.redraw()

	sc := bufio.NewScanner(in)
	for {
		sh.prompt()
		if !sc.Scan() {
			return sc.Err()
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		err := sh.Exec(ctx, sc.Text())
		if errors.Is(err, ErrQuit) {
			return nil
		}
		if err != nil {
			sh.printf("%s\n", red(err.Error()))
		}
		sh.flushNotices()
	}
}

// Exec runs one command line.
func (sh *Shell) Exec(ctx context.Context, line string) error {
	cmd, arg := splitCommand(line)
	if cmd == "" {
		return nil
	}
	mode := sh.s.View().Mode

	switch cmd {
	case "quit", "exit", "q":
		return ErrQuit
	case "help", "?":
		sh.help(mode)
		return nil
	case "whoami":
		sh.withOut(func(w io.Writer) { RenderUser(w, sh.s.View()) })
		return nil
	case "show", "ls":
		sh.redraw()
		return nil
	case "wait":
		sh.wg.Wait()
		sh.redraw()
		return nil
	}

	var err error
	switch mode {
	case view.List:
		err = sh.execList(ctx, cmd, arg)
	case view.Create:
		err = sh.execCreate(ctx, cmd, arg)
	case view.Detail:
		err = sh.execDetail(ctx, cmd, arg)
	}
	if errors.Is(err, errUnknown) {
		return fmt.Errorf("unknown command %q in %s view, type 'help'", cmd, mode)
	}
	if errors.Is(err, errUsage) || errors.Is(err, view.ErrInvalidTransition) {
		return err
	}
	if err != nil {
		// already queued as a notice
		return nil
	}
	sh.redraw()
	return nil
}

var (
	errUnknown = errors.New("unknown command")
	errUsage   = errors.New("usage")
)

func (sh *Shell) execList(ctx context.Context, cmd, arg string) error {
	switch cmd {
	case "refresh", "r":
		return sh.s.RefreshPosts(ctx)
	case "open", "o":
		id, err := sh.resolvePost(arg)
		if err != nil {
			return err
		}
		return sh.s.SelectPost(ctx, id)
	case "new", "n":
		sh.form = form{}
		return sh.s.StartCreate()
	}
	return errUnknown
}

// resolvePost accepts a 1-based list index or a post id.
func (sh *Shell) resolvePost(arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return "", fmt.Errorf("%w: open needs a number or id", errUsage)
	}
	if n, err := strconv.Atoi(arg); err == nil {
		list := sh.s.View().Posts
		if n < 1 || n > len(list) {
			return "", fmt.Errorf("%w: no post #%d", errUsage, n)
		}
		return list[n-1].ID, nil
	}
	return arg, nil
}

func (sh *Shell) execCreate(ctx context.Context, cmd, arg string) error {
	switch cmd {
	case "title":
		sh.form.title = arg
		return nil
	case "content", "body":
		sh.form.content = arg
		return nil
	case "image":
		sh.form.imagePath = strings.TrimSpace(arg)
		return nil
	case "cancel":
		sh.form = form{}
		return sh.s.CancelCreate(ctx)
	case "submit":
		img, err := sh.loadImage(sh.form.imagePath)
		if err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		in := models.PostInput{Title: sh.form.title, Content: sh.form.content}
		if _, err := sh.s.SubmitPost(ctx, in, img); err != nil {
			return err
		}
		sh.form = form{}
		return nil
	}
	return errUnknown
}

func (sh *Shell) loadImage(path string) (*models.Image, error) {
	if path == "" {
		return nil, nil
	}
	data, err := sh.readFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return &models.Image{Name: filepath.Base(path), Data: data}, nil
}

func (sh *Shell) execDetail(ctx context.Context, cmd, arg string) error {
	switch cmd {
	case "back", "b":
		return sh.s.Back(ctx)
	case "draft":
		return sh.s.SetDraft(arg)
	case "say", "comment", "c":
		if err := sh.s.SetDraft(arg); err != nil {
			return err
		}
		sh.submitComment(ctx)
		return nil
	case "send":
		sh.submitComment(ctx)
		return nil
	}
	return errUnknown
}

// submitComment shows the placeholder and clears the draft before it
// returns; only the store write runs in the background, and its outcome is
// printed when it lands.
func (sh *Shell) submitComment(ctx context.Context) {
	gen := sh.s.View().Generation
	finish, err := sh.s.StartComment()
	if err != nil {
		sh.flushNotices()
		return
	}
	sh.wg.Add(1)
	go func() {
		defer sh.wg.Done()
		res, _ := finish(ctx)
		sh.flushNotices()
		if res.Outcome == comments.Reconciled && sh.s.View().Generation == gen {
			sh.printf("\n")
			sh.redraw()
		}
	}()
	sh.printf("%s\n", faint("sending..."))
}

func (sh *Shell) redraw() {
	sh.withOut(func(w io.Writer) {
		Render(w, sh.s.View(), sh.now())
	})
}

func (sh *Shell) flushNotices() {
	n := sh.s.Notices()
	if len(n) == 0 {
		return
	}
	sh.withOut(func(w io.Writer) { RenderNotices(w, n) })
}

func (sh *Shell) prompt() {
	snap := sh.s.View()
	label := snap.Mode.String()
	if snap.Mode == view.Detail {
		label += ": " + postLabel(snap.Post)
	}
	sh.printf("%s ", cyan("postboard["+label+"]>"))
}

func (sh *Shell) help(mode view.Mode) {
	lines := []string{"whoami | show | wait | help | quit"}
	switch mode {
	case view.List:
		lines = append(lines, "refresh | open <n|id> | new")
	case view.Create:
		lines = append(lines, "title <text> | content <text> | image <path> | submit | cancel")
	case view.Detail:
		lines = append(lines, "say <text> | draft <text> | send | back")
	}
	sh.printf("%s\n", strings.Join(lines, "\n"))
}

func (sh *Shell) printf(format string, args ...interface{}) {
	sh.withOut(func(w io.Writer) { fmt.Fprintf(w, format, args...) })
}

func (sh *Shell) withOut(fn func(io.Writer)) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	fn(sh.out)
}

func splitCommand(line string) (cmd, arg string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", ""
	}
	cmd, arg, _ = strings.Cut(line, " ")
	return strings.ToLower(cmd), strings.TrimSpace(arg)
}
