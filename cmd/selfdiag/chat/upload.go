package chat

import (
	"errors"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/mrsinham/selfdiag/cmd/selfdiag/chat/components"
	"github.com/mrsinham/selfdiag/internal/tongueimage"
)

// imageLoadedMsg is sent once the chosen file has been decoded and normalized.
type imageLoadedMsg struct {
	result tongueimage.Result
	err    error
}

// UploadScreen asks for the path of the tongue photo.
type UploadScreen struct {
	form      *huh.Form
	path      string
	lastError string
	done      bool
	cancelled bool
}

// NewUploadScreen creates the photo prompt. lastError, when set, is shown
// above the form so a retry explains what went wrong.
func NewUploadScreen(lastPath, lastError string) *UploadScreen {
	s := &UploadScreen{
		path:      lastPath,
		lastError: lastError,
	}

	s.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Key("image_path").
				Title("舌象照片").
				Description("输入照片文件的路径").
				Placeholder("/path/to/tongue.jpg").
				Value(&s.path).
				Validate(validateImagePath),
		),
	).WithShowHelp(false)

	return s
}

func validateImagePath(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return errors.New("请选择一张照片")
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("无法读取文件: %w", err)
	}
	if info.IsDir() {
		return errors.New("请选择文件而不是目录")
	}
	return nil
}

// Init implements tea.Model
func (s *UploadScreen) Init() tea.Cmd {
	return s.form.Init()
}

// Update implements tea.Model
func (s *UploadScreen) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "ctrl+c", "esc":
			s.cancelled = true
			return s, nil
		}
	}

	form, cmd := s.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		s.form = f
	}

	if s.form.State == huh.StateCompleted {
		s.done = true
		return s, nil
	}

	return s, cmd
}

// View implements tea.Model
func (s *UploadScreen) View() string {
	parts := []string{s.form.View()}
	if s.lastError != "" {
		parts = append([]string{components.ErrorStyle.Render(s.lastError)}, parts...)
	}
	parts = append(parts, components.HintStyle.Render("Enter: 上传 | Esc: 退出"))
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// Done reports whether a path was submitted.
func (s *UploadScreen) Done() bool { return s.done }

// Cancelled reports whether the user left the prompt.
func (s *UploadScreen) Cancelled() bool { return s.cancelled }

// Path returns the submitted path.
func (s *UploadScreen) Path() string { return strings.TrimSpace(s.path) }

// loadImage decodes and normalizes the file at path off the UI goroutine.
func loadImage(path string, opts tongueimage.Options) tea.Cmd {
	return func() tea.Msg {
		result, err := tongueimage.Load(path, opts)
		return imageLoadedMsg{result: result, err: err}
	}
}
