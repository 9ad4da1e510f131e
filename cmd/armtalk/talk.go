package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/gwillem/armtalk/pkg/audio"
	"github.com/gwillem/armtalk/pkg/bus"
	"github.com/gwillem/armtalk/pkg/jaw"
	"github.com/gwillem/armtalk/pkg/robot"
	"github.com/gwillem/armtalk/pkg/speech"
)

type TalkCommand struct {
	Port string `long:"port" required:"true" description:"Serial port of the arm"`
	Role string `long:"role" default:"follower" choice:"follower" choice:"leader" description:"Arm role, selects the calibration directory"`
	ID   string `long:"id" description:"Arm identifier, selects the calibration file"`
	Dir  string `long:"dir" description:"Calibration base directory (defaults to the LeRobot cache)"`

	Mode      string `long:"mode" default:"pulse" choice:"pulse" choice:"amplitude" description:"Jaw sync mode"`
	JawClosed *int   `long:"jaw-closed" description:"Jaw closed position (default: from gripper calibration)"`
	JawOpen   *int   `long:"jaw-open" description:"Jaw open position (default: from gripper calibration)"`

	Rate        int    `long:"rate" default:"150" description:"Speech rate in words per minute"`
	Voice       string `long:"voice" description:"TTS voice"`
	File        string `long:"file" description:"Play a .wav or .mp3 file instead of synthesizing"`
	Interactive bool   `long:"interactive" short:"i" description:"Interactive mode: type lines, the arm speaks them"`

	Args struct {
		Text []string `positional-arg-name:"TEXT"`
	} `positional-args:"yes"`
}

func (c *TalkCommand) Execute(args []string) error {
	cfg, err := c.jawConfig()
	if err != nil {
		return err
	}

	mode := jaw.Mode(c.Mode)
	if _, err := jaw.NewPolicy(mode, cfg); err != nil {
		return err
	}

	fb, err := bus.OpenFeetech(c.Port)
	if err != nil {
		return err
	}
	defer fb.Close()
	b := bus.WithRetry(fb, 3)

	ctx := context.Background()
	if c.Interactive {
		return c.runInteractive(ctx, b, cfg, mode)
	}

	text := strings.Join(c.Args.Text, " ")
	if c.File == "" && text == "" {
		return fmt.Errorf("nothing to say: give TEXT, --file, or --interactive")
	}

	pcm, rate, err := c.acquirePCM(ctx, text)
	if err != nil {
		return err
	}
	return speakWithChart(ctx, b, cfg, mode, pcm, rate)
}

// jawConfig derives the jaw travel from the gripper's calibrated range,
// with explicit flag overrides winning and reference-arm defaults as the
// fallback when no calibration file exists.
func (c *TalkCommand) jawConfig() (jaw.Config, error) {
	cfg := jaw.DefaultConfig()

	if c.ID != "" {
		path := robot.CalibrationPath(c.Dir, robot.ArmRole(c.Role), c.ID)
		cal, err := robot.LoadCalibration(path)
		if err != nil {
			return cfg, fmt.Errorf("load calibration %s: %w", path, err)
		}
		_, mc, ok := cal.ByID(robot.GripperID)
		if !ok {
			return cfg, fmt.Errorf("calibration %s has no servo %d entry", path, robot.GripperID)
		}
		cfg.Closed = mc.RangeMin
		cfg.Open = mc.RangeMax
		if c.JawClosed != nil {
			cfg.Closed = mc.Clamp(*c.JawClosed)
		}
		if c.JawOpen != nil {
			cfg.Open = mc.Clamp(*c.JawOpen)
		}
		return cfg, nil
	}

	if c.JawClosed != nil {
		cfg.Closed = *c.JawClosed
	}
	if c.JawOpen != nil {
		cfg.Open = *c.JawOpen
	}
	return cfg, nil
}

func (c *TalkCommand) acquirePCM(ctx context.Context, text string) ([]int16, int, error) {
	if c.File != "" {
		data, err := os.ReadFile(c.File)
		if err != nil {
			return nil, 0, err
		}
		switch strings.ToLower(filepath.Ext(c.File)) {
		case ".wav":
			return audio.DecodeWAV(data)
		case ".mp3":
			return audio.DecodeMP3(bytes.NewReader(data))
		default:
			return nil, 0, fmt.Errorf("unsupported audio file %s (want .wav or .mp3)", c.File)
		}
	}

	tts := &speech.OpenAITTS{Voice: c.Voice, Rate: c.Rate}
	return tts.Synthesize(ctx, text)
}

// speak runs the envelope pipeline: extract, play audio in the
// background, and drive the jaw on its own timeline.
func speak(ctx context.Context, b bus.Bus, cfg jaw.Config, mode jaw.Mode, pcm []int16, rate int) (*jaw.Talker, *audio.Envelope, error) {
	env, err := audio.Extract(pcm, rate, audio.Config{})
	if err != nil {
		return nil, nil, err
	}
	policy, err := jaw.NewPolicy(mode, cfg)
	if err != nil {
		return nil, nil, err
	}
	talker := jaw.NewTalker(b, robot.GripperID, policy, cfg)

	go func() {
		player := speech.FindPlayer()
		_ = player.Play(ctx, pcm, rate)
	}()

	return talker, env, nil
}

// Interactive mode

func (c *TalkCommand) runInteractive(ctx context.Context, b bus.Bus, cfg jaw.Config, mode jaw.Mode) error {
	fmt.Println(headerStyle.Render("Interactive mode"))
	fmt.Println(dimStyle.Render("Type text to speak it. Commands: /mode <pulse|amplitude>, /rate <wpm>, /jaw <0-100>, /quit"))
	fmt.Println()

	rate := c.Rate
	for {
		var line string
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("say").
					Value(&line),
			),
		)
		if err := form.Run(); err != nil {
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			parts := strings.Fields(line)
			switch parts[0] {
			case "/quit", "/exit":
				return nil
			case "/mode":
				if len(parts) > 1 {
					if _, err := jaw.NewPolicy(jaw.Mode(parts[1]), cfg); err != nil {
						fmt.Println(err)
						continue
					}
					mode = jaw.Mode(parts[1])
					fmt.Printf("Mode: %s\n", mode)
				}
			case "/rate":
				if len(parts) > 1 {
					if v, err := strconv.Atoi(parts[1]); err == nil && v > 0 {
						rate = v
						fmt.Printf("Rate: %d wpm\n", rate)
					}
				}
			case "/jaw":
				if len(parts) > 1 {
					if err := testJaw(ctx, b, cfg, parts[1]); err != nil {
						fmt.Println(err)
					}
				}
			default:
				fmt.Printf("Unknown command %s\n", parts[0])
			}
			continue
		}

		tts := &speech.OpenAITTS{Voice: c.Voice, Rate: rate}
		pcm, sampleRate, err := tts.Synthesize(ctx, line)
		if err != nil {
			fmt.Printf("TTS error: %v\n", err)
			continue
		}
		if err := speakPlain(ctx, b, cfg, mode, pcm, sampleRate); err != nil {
			return err
		}
	}
}

// testJaw moves the jaw to a percentage of its travel and releases it.
func testJaw(ctx context.Context, b bus.Bus, cfg jaw.Config, arg string) error {
	pct, err := strconv.Atoi(arg)
	if err != nil || pct < 0 || pct > 100 {
		return fmt.Errorf("jaw position must be 0-100, got %q", arg)
	}
	pos := cfg.Closed + (cfg.Open-cfg.Closed)*pct/100

	if err := b.SetTorque(ctx, robot.GripperID, true); err != nil {
		return err
	}
	if err := b.WriteRegister(ctx, robot.GripperID, bus.RegGoalPosition, pos); err != nil {
		return err
	}
	fmt.Printf("Jaw at %d%% (position %d)\n", pct, pos)
	return nil
}

// speakPlain drives the jaw without the chart TUI, printing talker logs
// as they arrive. Used by interactive mode where huh owns the terminal.
func speakPlain(ctx context.Context, b bus.Bus, cfg jaw.Config, mode jaw.Mode, pcm []int16, rate int) error {
	talker, env, err := speak(ctx, b, cfg, mode, pcm, rate)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- talker.Run(ctx, env) }()

	for {
		select {
		case msg := <-talker.Logs():
			fmt.Println(dimStyle.Render(msg))
		case <-talker.States():
			// drain so the talker never blocks
		case err := <-done:
			return err
		}
	}
}

// Chart TUI

const (
	talkHeaderHeight = 2
	talkLegendHeight = 2
	talkFooterHeight = 7
	talkMaxLogs      = 5
	talkBorderSize   = 2
)

var (
	loudnessColor = lipgloss.Color("51")  // cyan
	jawColor      = lipgloss.Color("201") // magenta
	chartStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
)

type talkModel struct {
	talker   *jaw.Talker
	cfg      jaw.Config
	chart    *streamlinechart.Model
	doneCh   <-chan struct{}
	runErr   *error
	width    int
	height   int
	logs     []string
	err      error
	done     bool
	quitting bool
}

type talkStateMsg jaw.State
type talkLogMsg string
type talkDoneMsg struct{ err error }

func waitForTalkState(t *jaw.Talker) tea.Cmd {
	return func() tea.Msg {
		return talkStateMsg(<-t.States())
	}
}

func waitForTalkLog(t *jaw.Talker) tea.Cmd {
	return func() tea.Msg {
		return talkLogMsg(<-t.Logs())
	}
}

// waitForTalkDone waits for the closed-channel broadcast; runErr is set
// before the channel closes.
func waitForTalkDone(done <-chan struct{}, runErr *error) tea.Cmd {
	return func() tea.Msg {
		<-done
		return talkDoneMsg{err: *runErr}
	}
}

func initialTalkModel(talker *jaw.Talker, cfg jaw.Config, done <-chan struct{}, runErr *error) talkModel {
	chart := streamlinechart.New(80, 20,
		streamlinechart.WithYRange(0, 1),
	)
	chart.SetDataSetStyles("loudness", runes.ThinLineStyle, lipgloss.NewStyle().Foreground(loudnessColor))
	chart.SetDataSetStyles("jaw", runes.ThinLineStyle, lipgloss.NewStyle().Foreground(jawColor))

	return talkModel{talker: talker, cfg: cfg, chart: &chart, doneCh: done, runErr: runErr}
}

func (m *talkModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > talkMaxLogs {
		m.logs = m.logs[len(m.logs)-talkMaxLogs:]
	}
}

// jawFraction normalizes a servo position into the chart's 0..1 range.
func (m *talkModel) jawFraction(pos int) float64 {
	lo, hi := m.cfg.Closed, m.cfg.Open
	if lo > hi {
		lo, hi = hi, lo
	}
	if hi == lo {
		return 0
	}
	return float64(pos-lo) / float64(hi-lo)
}

func (m *talkModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20
	}
	width = m.width - talkBorderSize - 2
	if width < 40 {
		width = 40
	}
	height = m.height - talkHeaderHeight - talkLegendHeight - talkFooterHeight - talkBorderSize
	if height < 10 {
		height = 10
	}
	return width, height
}

func (m talkModel) Init() tea.Cmd {
	return tea.Batch(
		waitForTalkState(m.talker),
		waitForTalkLog(m.talker),
		waitForTalkDone(m.doneCh, m.runErr),
	)
}

func (m talkModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		w, h := m.chartSize()
		m.chart.Resize(w, h)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case talkStateMsg:
		state := jaw.State(msg)
		m.chart.PushDataSet("loudness", state.Loudness)
		m.chart.PushDataSet("jaw", m.jawFraction(state.Position))
		m.chart.DrawAll()
		return m, waitForTalkState(m.talker)

	case talkLogMsg:
		m.addLog(string(msg))
		return m, waitForTalkLog(m.talker)

	case talkDoneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	}

	return m, nil
}

func (m talkModel) View() string {
	if m.quitting || m.done {
		return ""
	}

	var sb strings.Builder

	sb.WriteString(headerStyle.Render("Armtalk"))
	if m.width > 0 {
		sb.WriteString(dimStyle.Render(fmt.Sprintf("  [%dx%d]", m.width, m.height)))
	}
	sb.WriteString("\n\n")

	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	loudnessLegend := lipgloss.NewStyle().Foreground(loudnessColor).Bold(true).Render("━━") + " loudness"
	jawLegend := lipgloss.NewStyle().Foreground(jawColor).Bold(true).Render("━━") + " jaw"
	sb.WriteString(loudnessLegend + "  " + jawLegend)
	sb.WriteString("\n")

	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(m.width - 4).
		Foreground(lipgloss.Color("9"))

	var logLines string
	if len(m.logs) == 0 {
		logLines = dimStyle.Render("Press 'q' to stop")
	} else {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

// speakWithChart runs one utterance under the chart TUI. Quitting the
// TUI cancels the talker, which parks the jaw closed on its way out.
func speakWithChart(ctx context.Context, b bus.Bus, cfg jaw.Config, mode jaw.Mode, pcm []int16, rate int) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	talker, env, err := speak(ctx, b, cfg, mode, pcm, rate)
	if err != nil {
		return err
	}

	var runErr error
	done := make(chan struct{})
	go func() {
		runErr = talker.Run(ctx, env)
		close(done)
	}()

	p := tea.NewProgram(initialTalkModel(talker, cfg, done, &runErr), tea.WithAltScreen())
	finalModel, err := p.Run()
	if err != nil {
		return err
	}

	if finalModel.(talkModel).quitting {
		cancel()
	}
	<-done
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}
