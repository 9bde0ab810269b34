// Package parser turns markdown notes into flashcard front/back pairs.
package parser

import (
	"bufio"
	"io"
	"os"
	"strings"
)

const (
	questionPrefix = "Q:"
	answerPrefix   = "A:"
	contextPrefix  = "C:"
	separator      = "---"
)

// Card is a front/back pair extracted from a note.
type Card struct {
	Front string
	Back  string
}

type state int

const (
	seeking state = iota
	readingQuestion
	readingAnswer
	readingContext
)

// ParseQAFile reads the file at path and extracts its Q/A cards.
func ParseQAFile(path string) ([]Card, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return ParseQA(file)
}

// ParseQA extracts cards written as "Q:" / "A:" blocks, each optionally
// followed by a "C:" context block that is appended to the back. A line of
// "---" ends the current card. Cards without both a question and an answer
// are skipped.
func ParseQA(r io.Reader) ([]Card, error) {
	scanner := bufio.NewScanner(r)
	var cards []Card
	var question, answer, context string
	var block []string
	current := seeking

	flushBlock := func() {
		if len(block) == 0 {
			return
		}
		content := strings.TrimSpace(strings.Join(block, "\n"))
		switch current {
		case readingQuestion:
			question = content
		case readingAnswer:
			answer = content
		case readingContext:
			context = content
		}
		block = nil
	}

	finishCard := func() {
		flushBlock()
		if question != "" && answer != "" {
			back := answer
			if context != "" {
				back += "\n\n" + context
			}
			cards = append(cards, Card{Front: question, Back: back})
		}
		question, answer, context = "", "", ""
		current = seeking
	}

	for scanner.Scan() {
		line := scanner.Text()

		if strings.TrimSpace(line) == separator {
			finishCard()
			continue
		}

		prefix, next := "", seeking
		switch {
		case strings.HasPrefix(line, questionPrefix):
			prefix, next = questionPrefix, readingQuestion
		case strings.HasPrefix(line, answerPrefix):
			prefix, next = answerPrefix, readingAnswer
		case strings.HasPrefix(line, contextPrefix):
			prefix, next = contextPrefix, readingContext
		}

		if next == seeking {
			if current != seeking {
				block = append(block, line)
			}
			continue
		}

		if next == readingQuestion && current != seeking {
			// A new question always starts a new card.
			finishCard()
		} else {
			flushBlock()
		}
		current = next
		block = append(block, strings.TrimPrefix(line[len(prefix):], " "))
	}

	finishCard()

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return cards, nil
}
