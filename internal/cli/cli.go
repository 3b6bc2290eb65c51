package cli

import (
	"fmt"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/buger/goterm"
	"github.com/chzyer/readline"
	"github.com/fatih/color"
)

var (
	// Colors for different types of output
	userInputColor   = color.New(color.FgWhite)               // White for user input
	userCommandColor = color.New(color.FgGreen)               // Green for user commands
	mentorColor      = color.New(color.FgCyan)                // Cyan for mentor responses
	noticeColor      = color.New(color.FgHiYellow)            // Yellow for retry/wait notices
	titleColor       = color.New(color.FgMagenta, color.Bold) // Bold magenta for titles
	separatorColor   = color.New(color.FgHiBlack)             // Dark grey for separators
	fileColor        = color.New(color.FgRed)                 // Red for file operations
	errorColor       = color.New(color.FgRed, color.Bold)     // Bold red for errors
	promptColor      = color.New(color.FgHiBlue)              // Bright blue for prompts

	width = terminalWidth()
)

// terminalWidth floors the reported width: goterm returns a non-positive
// value when stdout is not a terminal, and a negative strings.Repeat panics.
func terminalWidth() int {
	if w := goterm.Width(); w > 0 {
		return w
	}
	return 80
}

// Separator printed to cli.
func Separator() {
	separator := strings.Repeat("-", width)
	separatorColor.Println(separator)
}

// Title printed to cli.
func Title(text string, args ...any) {
	title := "      " + fmt.Sprintf(text, args...) + "      "
	leftWidth := (width - len(title)) / 2
	if leftWidth < 0 {
		leftWidth = 0
	}
	rightWidth := width - len(title) - leftWidth
	if rightWidth < 0 {
		rightWidth = 0
	}
	output := fmt.Sprintf("%s%s%s", strings.Repeat("-", leftWidth), title, strings.Repeat("-", rightWidth))
	titleColor.Println(output)
}

// UserInput printed to cli.
func UserInput(text string, args ...any) {
	userInputColor.Printf(text, args...)
}

// UserCommand printed to cli.
func UserCommand(text string, args ...any) {
	if len(args) == 0 {
		userCommandColor.Print(text)
		return
	}
	userCommandColor.Printf(text, args...)
}

// MentorOutput printed to cli. Literal text is escaped so streamed model
// output containing % cannot be misread as format verbs.
func MentorOutput(text string, args ...any) {
	if len(args) == 0 {
		text = strings.ReplaceAll(text, "%", "%%")
	}
	mentorColor.Printf(text, args...)
}

// Notice printed to cli.
func Notice(text string, args ...any) {
	if len(args) == 0 {
		text = strings.ReplaceAll(text, "%", "%%")
	}
	noticeColor.Printf(text, args...)
}

// Error printed to cli.
func Error(text string, args ...any) {
	errorColor.Printf(text, args...)
}

// FileInfo printed to cli.
func FileInfo(text string, args ...any) {
	fileColor.Printf(text, args...)
}

// PromptUser for input.
func PromptUser() (string, error) {
	exit := false
	config := &readline.Config{
		Prompt:            promptColor.Sprint("> "),
		InterruptPrompt:   "^C",
		HistoryFile:       "/tmp/bisacoding.history",
		HistorySearchFold: true,
		FuncFilterInputRune: func(r rune) (rune, bool) {
			if r == '\x0A' { // Ctrl + J
				exit = true
			}
			return r, true
		},
	}

	rl, err := readline.NewEx(config)
	if err != nil {
		return "", err
	}
	defer rl.Close()
	var lines []string
	for {
		line, err := rl.Readline()
		if err != nil {
			return "", err
		}
		lines = append(lines, line)
		if err == readline.ErrInterrupt || exit {
			break
		}
		rl.SetPrompt("")
	}
	return strings.Join(lines, "\n"), nil
}

// QueryUser a yes/no question.
func QueryUser(question string) bool {
	surveyQuestion := &survey.Confirm{
		Message: question,
	}
	confirm := false
	survey.AskOne(surveyQuestion, &confirm)
	return confirm
}
