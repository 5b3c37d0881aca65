// Package bank loads the question bank from a delimited text file.
package bank

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/pavelanni/examprep/internal/model"
)

// ErrMalformedBank is matched by every error describing bad source data.
var ErrMalformedBank = errors.New("malformed question bank")

// MalformedBankError reports where the source data is broken.
type MalformedBankError struct {
	Line   int    // 1-based line in the source, 0 when not tied to a row
	Column string // column name, empty when not tied to a column
	Reason string
}

func (e *MalformedBankError) Error() string {
	var sb strings.Builder
	sb.WriteString(ErrMalformedBank.Error())
	if e.Line > 0 {
		fmt.Fprintf(&sb, ": line %d", e.Line)
	}
	if e.Column != "" {
		fmt.Fprintf(&sb, ": column %q", e.Column)
	}
	sb.WriteString(": " + e.Reason)
	return sb.String()
}

// Is makes errors.Is(err, ErrMalformedBank) true.
func (e *MalformedBankError) Is(target error) bool {
	return target == ErrMalformedBank
}

const (
	colQuestion    = "question"
	colAnswer      = "answer"
	colExplanation = "explanation"
	colTopic       = "topic"
)

var optionColumns = [model.NumOptions]string{"option_A", "option_B", "option_C", "option_D"}

var bom = []byte{0xEF, 0xBB, 0xBF}

// Parse reads a CSV bank with a header row and returns one Question per data
// row in source order. Question IDs are row indexes starting at 0.
func Parse(r io.Reader) ([]model.Question, error) {
	br := bufio.NewReader(r)
	if b, err := br.Peek(len(bom)); err == nil && bytes.Equal(b, bom) {
		_, _ = br.Discard(len(bom))
	}
	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, &MalformedBankError{Line: 1, Reason: "missing header row"}
	}
	if err != nil {
		return nil, &MalformedBankError{Line: 1, Reason: err.Error()}
	}

	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(name)] = i
	}

	required := append([]string{colQuestion}, optionColumns[:]...)
	required = append(required, colAnswer)
	for _, name := range required {
		if _, ok := idx[name]; !ok {
			return nil, &MalformedBankError{Line: 1, Column: name, Reason: "required column missing"}
		}
	}

	cell := func(rec []string, name string) string {
		i, ok := idx[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var questions []model.Question
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				return nil, &MalformedBankError{Line: perr.Line, Reason: perr.Err.Error()}
			}
			return nil, fmt.Errorf("read bank: %w", err)
		}
		line, _ := cr.FieldPos(0)

		answer := cell(rec, colAnswer)
		correct, ok := LetterIndex(answer)
		if !ok {
			return nil, &MalformedBankError{
				Line:   line,
				Column: colAnswer,
				Reason: fmt.Sprintf("answer %q is not one of A, B, C, D", answer),
			}
		}

		q := model.Question{
			ID:           len(questions),
			Text:         cell(rec, colQuestion),
			CorrectIndex: correct,
			Explanation:  cell(rec, colExplanation),
			Topic:        cell(rec, colTopic),
		}
		for i, col := range optionColumns {
			q.Options[i] = cell(rec, col)
		}
		questions = append(questions, q)
	}

	return questions, nil
}

// LetterIndex maps an answer letter (A-D, any case, surrounding whitespace
// ignored) to an option index.
func LetterIndex(s string) (int, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) != 1 || s[0] < 'A' || s[0] >= 'A'+model.NumOptions {
		return 0, false
	}
	return int(s[0] - 'A'), true
}

// IndexLetter is the inverse of LetterIndex. It returns "" for an index out
// of range.
func IndexLetter(i int) string {
	if i < 0 || i >= model.NumOptions {
		return ""
	}
	return string(rune('A' + i))
}

// Topics returns the distinct topics of the bank, sorted.
func Topics(questions []model.Question) []string {
	seen := make(map[string]bool)
	var topics []string
	for _, q := range questions {
		if !seen[q.Topic] {
			seen[q.Topic] = true
			topics = append(topics, q.Topic)
		}
	}
	sort.Strings(topics)
	return topics
}

// FilterTopics keeps the topics that appear in allowed. An empty allowed list
// keeps every topic.
func FilterTopics(topics, allowed []string) []string {
	if len(allowed) == 0 {
		return topics
	}
	ok := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		ok[strings.TrimSpace(a)] = true
	}
	var out []string
	for _, t := range topics {
		if ok[t] {
			out = append(out, t)
		}
	}
	return out
}

// Restrict keeps the questions whose topic appears in allowed. An empty
// allowed list keeps the whole bank.
func Restrict(questions []model.Question, allowed []string) []model.Question {
	if len(allowed) == 0 {
		return questions
	}
	keep := make(map[string]bool)
	for _, t := range FilterTopics(Topics(questions), allowed) {
		keep[t] = true
	}
	var out []model.Question
	for _, q := range questions {
		if keep[q.Topic] {
			out = append(out, q)
		}
	}
	return out
}

// Loader reads a bank file once and serves the parsed questions for the rest
// of the process.
type Loader struct {
	Path string

	once      sync.Once
	questions []model.Question
	hash      string
	err       error
}

// NewLoader creates a Loader for the file at path.
func NewLoader(path string) *Loader {
	return &Loader{Path: path}
}

// Load parses the bank on the first call and returns the cached result on
// every later call.
func (l *Loader) Load() ([]model.Question, error) {
	l.once.Do(func() {
		data, err := os.ReadFile(l.Path)
		if err != nil {
			l.err = fmt.Errorf("read %s: %w", l.Path, err)
			return
		}
		sum := sha256.Sum256(data)
		l.hash = hex.EncodeToString(sum[:])

		l.questions, l.err = Parse(bytes.NewReader(data))
		if l.err != nil {
			l.err = fmt.Errorf("parse %s: %w", l.Path, l.err)
			return
		}
		slog.Info("loaded question bank", "path", l.Path, "questions", len(l.questions))
	})
	return l.questions, l.err
}

// Fingerprint returns the sha256 of the bank file, loading it if needed.
func (l *Loader) Fingerprint() (string, error) {
	if _, err := l.Load(); err != nil {
		return "", err
	}
	return l.hash, nil
}
