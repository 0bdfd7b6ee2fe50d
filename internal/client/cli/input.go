package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// GetSimpleText prints a prompt to w and reads a single line of input from reader.
// The trailing newline is trimmed. If EOF occurs after some input was read,
// the partial line is returned.
//
// Example prompt format:
//
//	Prompt text
//	> _
func GetSimpleText(reader *bufio.Reader, prompt string, w io.Writer) (string, error) {
	if _, err := fmt.Fprint(w, prompt+"\n> "); err != nil {
		return "", err
	}
	line, err := reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// GetMultiline prints a prompt to w and reads multiple lines until an empty
// line is entered (i.e., the user presses Enter twice). The trailing newline
// on each line is trimmed and the collected text is joined with '\n'.
func GetMultiline(reader *bufio.Reader, prompt string, w io.Writer) (string, error) {
	if _, err := fmt.Fprint(w, prompt+"\n(press Enter on an empty line to finish)\n"); err != nil {
		return "", err
	}

	var lines []string
	for {
		line, err := reader.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		lines = append(lines, line)
		if err != nil {
			break
		}
	}

	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}

// clearMarker entered at an edit prompt empties the field.
const clearMarker = "-"

// GetField prompts for a new value of a field, showing the current one.
// An empty answer keeps the field (changed is false); "-" clears it.
func GetField(reader *bufio.Reader, label, current string, w io.Writer) (value string, changed bool, err error) {
	prompt := label
	if current != "" {
		prompt += " [" + current + "]"
	}
	v, err := GetSimpleText(reader, prompt, w)
	if err != nil {
		return "", false, err
	}
	switch v {
	case "":
		return current, false, nil
	case clearMarker:
		return "", true, nil
	}
	return v, v != current, nil
}

// Confirm asks a yes/no question; anything but y/yes is no.
func Confirm(reader *bufio.Reader, question string, w io.Writer) (bool, error) {
	v, err := GetSimpleText(reader, question+" [y/N]", w)
	if err != nil {
		return false, err
	}
	v = strings.ToLower(v)
	return v == "y" || v == "yes", nil
}
