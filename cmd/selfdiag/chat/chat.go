// Package chat provides the interactive TUI for a self-diagnosis session.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mrsinham/selfdiag/cmd/selfdiag/chat/components"
	"github.com/mrsinham/selfdiag/internal/diagnosis"
	"github.com/mrsinham/selfdiag/internal/tongueimage"
)

// Mode is what the bottom of the screen is waiting for.
type Mode int

const (
	ModeAnswer Mode = iota
	ModeUpload
	ModeBusy
	ModeDone
)

// Layout constants, in terminal lines.
const (
	defaultWidth  = 80
	defaultHeight = 24
	chromeHeight  = 12
	minViewport   = 5
)

// answerDoneMsg is sent when SubmitAnswer returns.
type answerDoneMsg struct {
	err error
}

// imageDoneMsg is sent when SubmitImage returns.
type imageDoneMsg struct {
	err error
}

// Options configures the chat UI.
type Options struct {
	Image tongueimage.Options
}

// Model is the bubbletea model driving one Session.
type Model struct {
	session *diagnosis.Session
	feed    *Feed
	opts    Options

	ctx    context.Context
	cancel context.CancelFunc

	mode      Mode
	viewport  viewport.Model
	input     textinput.Model
	spinner   spinner.Model
	upload    *UploadScreen
	helpPanel *components.HelpPanel

	messages []diagnosis.Message
	status   string
	lastPath string

	width     int
	height    int
	cancelled bool
	finished  bool
}

// New creates the model. The session must report its messages to feed.
func New(session *diagnosis.Session, feed *Feed, opts Options) *Model {
	ctx, cancel := context.WithCancel(context.Background())

	input := textinput.New()
	input.CharLimit = 500
	input.Prompt = "> "

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = components.SystemLabelStyle

	m := &Model{
		session:   session,
		feed:      feed,
		opts:      opts,
		ctx:       ctx,
		cancel:    cancel,
		viewport:  viewport.New(defaultWidth, defaultHeight-chromeHeight),
		input:     input,
		spinner:   sp,
		helpPanel: components.NewHelpPanel(),
	}
	m.resize(defaultWidth, defaultHeight)
	m.syncMode()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.feed.wait(), textinput.Blink}
	if m.mode == ModeUpload {
		cmds = append(cmds, m.upload.Init())
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case transcriptMsg:
		switch {
		case msg.Order == len(m.messages):
			m.messages = append(m.messages, diagnosis.Message(msg))
		case msg.Order > len(m.messages):
			// Left over from before a restart, or a gap: resync.
			m.messages = m.session.Messages()
		default:
			// Already shown.
			return m, m.feed.wait()
		}
		m.refreshTranscript()
		return m, m.feed.wait()

	case answerDoneMsg:
		m.status = statusText(msg.err)
		return m, m.syncMode()

	case imageDoneMsg:
		if msg.err != nil {
			return m, m.openUpload("上传失败，可以重新选择照片再试。")
		}
		m.status = ""
		return m, m.syncMode()

	case imageLoadedMsg:
		if msg.err != nil {
			return m, m.openUpload(imageErrorText(msg.err))
		}
		m.mode = ModeBusy
		m.status = "正在上传 " + msg.result.Summary()
		return m, tea.Batch(m.spinner.Tick, m.submitImage(msg.result.Image))

	case spinner.TickMsg:
		if m.mode != ModeBusy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	switch m.mode {
	case ModeUpload:
		return m.updateUpload(msg)
	case ModeBusy:
		return m.updateBusy(msg)
	case ModeDone:
		return m.updateDone(msg)
	default:
		return m.updateAnswer(msg)
	}
}

// updateAnswer handles keys while a text answer is expected.
func (m *Model) updateAnswer(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "ctrl+c", "esc":
			return m.quit(true)
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		case "enter":
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				m.status = statusText(diagnosis.ErrEmptyAnswer)
				return m, nil
			}
			m.input.Reset()
			m.mode = ModeBusy
			m.status = ""
			return m, tea.Batch(m.spinner.Tick, m.submitAnswer(text))
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// updateUpload forwards input to the photo prompt.
func (m *Model) updateUpload(msg tea.Msg) (tea.Model, tea.Cmd) {
	model, cmd := m.upload.Update(msg)
	if us, ok := model.(*UploadScreen); ok {
		m.upload = us
	}

	if m.upload.Cancelled() {
		return m.quit(true)
	}

	if m.upload.Done() {
		m.lastPath = m.upload.Path()
		m.mode = ModeBusy
		m.status = "正在处理照片..."
		return m, tea.Batch(m.spinner.Tick, loadImage(m.lastPath, m.opts.Image))
	}

	return m, cmd
}

// updateBusy only allows scrolling and quitting while a call is running.
func (m *Model) updateBusy(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "ctrl+c":
			return m.quit(true)
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	return m, nil
}

// updateDone waits for the user to leave or start over.
func (m *Model) updateDone(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "enter", "q", "esc", "ctrl+c":
			return m.quit(false)
		case "n":
			return m, m.restart()
		}
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// restart begins a new diagnosis in the same session. Messages of the previous
// run still queued in the feed are skipped by their order.
func (m *Model) restart() tea.Cmd {
	if err := m.session.Start(); err != nil {
		m.status = statusText(err)
		return nil
	}
	m.messages = m.session.Messages()
	m.status = ""
	m.lastPath = ""
	m.upload = nil
	m.refreshTranscript()
	return m.syncMode()
}

func (m *Model) quit(cancelled bool) (tea.Model, tea.Cmd) {
	m.cancelled = cancelled
	m.finished = !cancelled
	m.cancel()
	return m, tea.Quit
}

// syncMode aligns the bottom of the screen with the session phase.
func (m *Model) syncMode() tea.Cmd {
	phase := m.session.Phase()
	m.helpPanel.SetPhase(phase.String())

	switch phase {
	case diagnosis.PhaseImageUpload:
		return m.openUpload("")
	case diagnosis.PhaseCompleted:
		m.mode = ModeDone
		m.input.Blur()
		return nil
	default:
		m.mode = ModeAnswer
		c := m.session.Cursor()
		m.input.Placeholder = diagnosis.Placeholder(c.Phase, c.Index)
		return m.input.Focus()
	}
}

func (m *Model) openUpload(lastError string) tea.Cmd {
	m.mode = ModeUpload
	m.status = ""
	m.input.Blur()
	m.upload = NewUploadScreen(m.lastPath, lastError)
	return m.upload.Init()
}

func (m *Model) submitAnswer(text string) tea.Cmd {
	session, ctx := m.session, m.ctx
	return func() tea.Msg {
		return answerDoneMsg{err: session.SubmitAnswer(ctx, text)}
	}
}

func (m *Model) submitImage(img *diagnosis.PendingImage) tea.Cmd {
	session, ctx := m.session, m.ctx
	return func() tea.Msg {
		return imageDoneMsg{err: session.SubmitImage(ctx, img)}
	}
}

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	m.viewport.Width = width
	m.viewport.Height = max(height-chromeHeight, minViewport)
	m.input.Width = max(width-4, 10)
	m.helpPanel.SetWidth(width)
	m.refreshTranscript()
}

func (m *Model) refreshTranscript() {
	m.viewport.SetContent(renderTranscript(m.messages, m.width))
	m.viewport.GotoBottom()
}

// View implements tea.Model.
func (m *Model) View() string {
	title := components.TitleStyle.Render("中医智能自诊")

	var footer string
	switch m.mode {
	case ModeUpload:
		footer = m.upload.View()
	case ModeBusy:
		footer = m.spinner.View() + " " + components.StatusStyle.Render(busyText(m.status))
	case ModeDone:
		footer = components.HintStyle.Render("n: 重新自诊 | Enter / q: 退出 | PgUp/PgDn: 滚动")
		if m.status != "" {
			footer = lipgloss.JoinVertical(lipgloss.Left, components.ErrorStyle.Render(m.status), footer)
		}
	default:
		footer = m.input.View()
		if m.status != "" {
			footer = lipgloss.JoinVertical(lipgloss.Left, footer, components.ErrorStyle.Render(m.status))
		}
		footer = lipgloss.JoinVertical(lipgloss.Left, footer,
			components.HintStyle.Render("Enter: 发送 | PgUp/PgDn: 滚动 | Esc: 退出"))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		title,
		m.viewport.View(),
		m.helpPanel.View(),
		footer,
	)
}

// Messages returns the transcript received so far.
func (m *Model) Messages() []diagnosis.Message {
	out := make([]diagnosis.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// Mode returns the current input mode.
func (m *Model) Mode() Mode { return m.mode }

// Cancelled reports whether the user left before the conversation completed.
func (m *Model) Cancelled() bool { return m.cancelled }

func busyText(status string) string {
	if status == "" {
		return "正在提交..."
	}
	return status
}

// renderTranscript lays out messages for a viewport of the given width.
func renderTranscript(msgs []diagnosis.Message, width int) string {
	body := components.MessageStyle.Width(max(width-2, 20))

	blocks := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		label := components.SystemLabelStyle.Render("助手")
		if msg.Sender == diagnosis.SenderUser {
			label = components.UserLabelStyle.Render("您")
		}
		blocks = append(blocks, label+"\n"+body.Render(msg.Text))
	}
	return strings.Join(blocks, "\n\n")
}

// statusText explains input errors. Saga failures are already reported in
// the transcript and give no status.
func statusText(err error) string {
	var se *diagnosis.SagaError
	switch {
	case err == nil, errors.As(err, &se):
		return ""
	case errors.Is(err, diagnosis.ErrEmptyAnswer):
		return "请输入回答后再发送。"
	case errors.Is(err, diagnosis.ErrSagaInFlight):
		return "正在提交，请稍候。"
	case errors.Is(err, diagnosis.ErrWrongPhase):
		return "当前阶段不接受文字回答。"
	case errors.Is(err, context.Canceled):
		return ""
	default:
		return err.Error()
	}
}

func imageErrorText(err error) string {
	switch {
	case errors.Is(err, tongueimage.ErrTooLarge):
		return "照片文件过大，请选择更小的照片。"
	case errors.Is(err, tongueimage.ErrEmpty):
		return "照片文件为空。"
	case errors.Is(err, tongueimage.ErrUnsupported):
		return "不支持的图片格式。"
	default:
		return fmt.Sprintf("无法读取照片: %v", err)
	}
}

// Run starts the session and the interactive chat. It returns the final
// model so the caller can export the transcript.
func Run(session *diagnosis.Session, feed *Feed, opts Options) (*Model, error) {
	if err := session.Start(); err != nil {
		return nil, fmt.Errorf("starting session: %w", err)
	}

	model := New(session, feed, opts)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion())

	finalModel, err := p.Run()
	model.cancel()
	if err != nil {
		return nil, fmt.Errorf("running chat: %w", err)
	}

	if m, ok := finalModel.(*Model); ok {
		return m, nil
	}
	return model, nil
}
