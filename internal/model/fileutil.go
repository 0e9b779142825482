package model

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// NumberedLine is one line of a file together with its 1-based number.
type NumberedLine struct {
	Number int
	Text   string
}

// LineContext represents a line from a file with surrounding context
type LineContext struct {
	LineNumber int            // Line number of the target
	Target     string         // The actual target line
	Before     []NumberedLine // Up to radius lines before the target
	After      []NumberedLine // Up to radius lines after the target
	ErrorMsg   string         // Error message if file couldn't be read
}

// ExpandTilde expands a leading ~ to the user's home directory.
func ExpandTilde(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return home + path[1:]
		}
	}
	return path
}

// GetLineContext reads a file and returns the target line with radius lines on each side.
func GetLineContext(filePath string, lineNumber, radius int) LineContext {
	file, err := os.Open(ExpandTilde(filePath))
	if err != nil {
		return LineContext{LineNumber: lineNumber, ErrorMsg: fmt.Sprintf("Could not read file: %v", err)}
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return LineContext{LineNumber: lineNumber, ErrorMsg: fmt.Sprintf("Error reading file: %v", err)}
	}
	return LineContextOf(lines, lineNumber, radius)
}

// LineContextOf is GetLineContext for content already in memory.
func LineContextOf(lines []string, lineNumber, radius int) LineContext {
	result := LineContext{LineNumber: lineNumber}
	if lineNumber < 1 || lineNumber > len(lines) {
		result.ErrorMsg = fmt.Sprintf("Line %d out of range (file has %d lines)", lineNumber, len(lines))
		return result
	}

	// A radius wider than the file never adds lines.
	radius = min(max(radius, 0), len(lines))

	result.Target = lines[lineNumber-1]
	for n := max(1, lineNumber-radius); n < lineNumber; n++ {
		result.Before = append(result.Before, NumberedLine{Number: n, Text: lines[n-1]})
	}
	for n := lineNumber + 1; n <= min(lineNumber+radius, len(lines)); n++ {
		result.After = append(result.After, NumberedLine{Number: n, Text: lines[n-1]})
	}
	return result
}
