package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/mrsinham/selfdiag/internal/diagnosis"
)

// readAnswers returns one answer per non-blank line. Lines starting with '#'
// are comments.
func readAnswers(r io.Reader) ([]string, error) {
	var answers []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		answers = append(answers, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading answers: %w", err)
	}
	return answers, nil
}

// printMessages returns a session listener writing each message to w.
func printMessages(w io.Writer) func(diagnosis.Message) {
	return func(msg diagnosis.Message) {
		label := "助手"
		if msg.Sender == diagnosis.SenderUser {
			label = "您"
		}
		fmt.Fprintf(w, "[%s] %s\n", label, msg.Text)
	}
}

// runScript drives session to completion with the given answers, submitting
// img when the conversation asks for the tongue photo. A failed saga stops
// the script and is returned after the transcript reports it.
func runScript(ctx context.Context, session *diagnosis.Session, answers []string, img *diagnosis.PendingImage) error {
	if err := session.Start(); err != nil {
		return err
	}

	next := 0
	for {
		phase := session.Phase()
		switch {
		case phase == diagnosis.PhaseCompleted:
			return nil

		case phase == diagnosis.PhaseImageUpload:
			if err := session.SubmitImage(ctx, img); err != nil {
				return fmt.Errorf("image submission: %w", err)
			}

		case next >= len(answers):
			return fmt.Errorf("answers ran out in phase %s (%d given)", phase, len(answers))

		default:
			answer := answers[next]
			next++
			if err := session.SubmitAnswer(ctx, answer); err != nil {
				return fmt.Errorf("answer %d: %w", next, err)
			}
		}
	}
}
