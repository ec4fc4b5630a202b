package sqlbucket

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"regexp"
	"strings"
	"text/template"
	"unicode"
)

// Bucket maps statement name to its parts.
// Most statements have one part; schema scripts split by :next have several.
type Bucket map[string][]string

// One returns single statement, panicking if it's missing.
func (b Bucket) One(name string) string {
	q, ok := b[name]
	if !ok || len(q) != 1 {
		panic(fmt.Sprintf("sqlbucket: statement %q missing or not singular", name))
	}
	return q[0]
}

type Loader struct {
	base          Bucket
	noNext        bool
	needSemicolon bool
	vars          map[string]string
}

func New() Loader {
	return Loader{}
}

func (l Loader) WithBase(base Bucket) Loader {
	l.base = base
	return l
}

func (l Loader) WithNoNext(noNext bool) Loader {
	l.noNext = noNext
	return l
}

func (l Loader) WithNeedSemicolon(needSemicolon bool) Loader {
	l.needSemicolon = needSemicolon
	return l
}

// WithVars supplies values visible to statement templates as {{.name}}.
func (l Loader) WithVars(vars map[string]string) Loader {
	l.vars = vars
	return l
}

func (l Loader) Load(r io.Reader) (queries Bucket, err error) {
	scanner := bufio.NewScanner(r)
	queries, err = l.Scan(scanner)
	if err != nil {
		err = fmt.Errorf("processing error: %w", err)
		return
	}
	err = scanner.Err()
	if err != nil {
		err = fmt.Errorf("scanner error: %w", err)
		return
	}
	return
}

func (l Loader) LoadFromFS(fsys fs.FS, name string) (_ Bucket, err error) {
	f, err := fsys.Open(name)
	if err != nil {
		return
	}
	defer f.Close()

	return l.Load(f)
}

func (l Loader) LoadFromString(s string) (Bucket, error) {
	return l.Load(strings.NewReader(s))
}

var (
	reName      = regexp.MustCompile(`^\s*--\s*:name\s+(\S+)\s*$`)
	reNameT     = regexp.MustCompile(`^\s*--\s*:namet\s+(\S+)\s*$`)
	reNext      = regexp.MustCompile(`^\s*--\s*:next\s*$`)
	reSomething = regexp.MustCompile(`^\s*--\s*:[[:alnum:]]+(?:\s+.*)?\s*$`)
)

func (l Loader) trimFinal(s string) (string, error) {
	s = strings.TrimSpace(s)
	if l.needSemicolon {
		if s == "" || s[len(s)-1] != ';' {
			return "", fmt.Errorf("no semicolon: %q", s)
		}
		s = strings.TrimSpace(s[:len(s)-1])
	}
	return s, nil
}

func (l Loader) Scan(in *bufio.Scanner) (_ Bucket, err error) {
	queries := make(Bucket)
	for k, v := range l.base {
		queries[k] = append([]string(nil), v...)
	}

	currtag := ""
	curri := 0
	currt := false

	// :namet fragments, plus caller vars
	templates := make(map[string]string)
	for k, v := range l.vars {
		templates[k] = v
	}

	finishcurrent := func() error {
		q := queries[currtag][curri]
		var qw strings.Builder
		t, e := template.New(currtag).Parse(q)
		if e != nil {
			return fmt.Errorf("template %q parse error: %w", currtag, e)
		}
		if e = t.Execute(&qw, templates); e != nil {
			return fmt.Errorf("template %q execution error: %w", currtag, e)
		}
		q = qw.String()
		if !currt {
			queries[currtag][curri], e = l.trimFinal(q)
			if e != nil {
				return fmt.Errorf("error on %q[%d]: %w", currtag, curri, e)
			}
			return nil
		}
		if curri != 0 {
			return fmt.Errorf("%q: can't use :next in conjuction with :namet", currtag)
		}
		currt = false
		templates[currtag] = strings.TrimSpace(q)
		delete(queries, currtag)
		return nil
	}

	for in.Scan() {

		line := strings.TrimRightFunc(in.Text(), unicode.IsSpace)

		if m := reName.FindStringSubmatch(line); len(m) != 0 {
			if currtag != "" {
				if err = finishcurrent(); err != nil {
					return
				}
			}
			currtag = m[1]
			queries[currtag] = append(queries[currtag], "")
			curri = len(queries[currtag]) - 1
			continue
		}

		if m := reNameT.FindStringSubmatch(line); len(m) != 0 {
			if currtag != "" {
				if err = finishcurrent(); err != nil {
					return
				}
			}
			currtag = m[1]
			currt = true
			queries[currtag] = append(queries[currtag], "")
			curri = len(queries[currtag]) - 1
			continue
		}

		if currtag != "" && !l.noNext && reNext.MatchString(line) {
			if err = finishcurrent(); err != nil {
				return
			}
			// only increase if current non-empty
			if queries[currtag][curri] != "" {
				queries[currtag] = append(queries[currtag], "")
				curri++
			}
			continue
		}

		if reSomething.MatchString(line) {
			return nil, fmt.Errorf("unrecognised ctl line: %q", line)
		}

		if currtag == "" {
			continue
		}
		queries[currtag][curri] += line + "\n"
	}

	if currtag != "" {
		if err = finishcurrent(); err != nil {
			return
		}
	}

	return queries, nil
}
