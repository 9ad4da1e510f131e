package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/gwillem/armtalk/pkg/bus"
	"github.com/gwillem/armtalk/pkg/robot"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type CalibrateCommand struct {
	Port string `long:"port" required:"true" description:"Serial port of the arm"`
	Role string `long:"role" default:"follower" choice:"follower" choice:"leader" description:"Arm role, selects the calibration directory"`
	ID   string `long:"id" required:"true" description:"Arm identifier, names the calibration file"`
	Dir  string `long:"dir" description:"Calibration base directory (defaults to the LeRobot cache)"`
	Poll bool   `long:"poll" description:"Track the sweep continuously instead of per-checkpoint"`
}

func (c *CalibrateCommand) Execute(args []string) error {
	path := robot.CalibrationPath(c.Dir, robot.ArmRole(c.Role), c.ID)

	fmt.Println(headerStyle.Render("Armtalk Calibration"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━"))
	fmt.Printf("  Port: %s\n  Role: %s\n  Arm ID: %s\n  File: %s\n\n", c.Port, c.Role, c.ID, path)

	fb, err := bus.OpenFeetech(c.Port)
	if err != nil {
		return err
	}
	defer fb.Close()
	b := bus.WithRetry(fb, 3)

	ctx := context.Background()
	session := robot.NewSession(b)

	fmt.Println("Verifying motors...")
	if err := session.Verify(ctx); err != nil {
		return err
	}
	fmt.Println(successStyle.Render("All 6 servos responding."))
	fmt.Println()

	if err := session.Prepare(ctx); err != nil {
		return fmt.Errorf("prepare arm: %w", err)
	}

	// Step 1: home posture.
	fmt.Println(subHeaderStyle.Render("━━━ Step 1: Set middle position ━━━"))
	waitForUser("Move the arm to the MIDDLE of its range of motion.")

	offsets, err := session.RecordHome(ctx)
	if err != nil {
		return err
	}
	printOffsets(offsets)

	// Step 2: range of motion sweep.
	fmt.Println(subHeaderStyle.Render("━━━ Step 2: Record range of motion ━━━"))
	if c.Poll {
		fmt.Println("Move each joint to its minimum AND maximum positions.")
	} else {
		fmt.Println("Move a joint, press Space to record the pose. Repeat for every extreme.")
	}
	fmt.Println()

	model := newSweepModel(ctx, session, b, c.Poll)
	finalModel, err := tea.NewProgram(model).Run()
	if err != nil {
		return fmt.Errorf("run sweep: %w", err)
	}
	sm := finalModel.(sweepModel)
	if sm.aborted {
		fmt.Println("Calibration cancelled. Nothing was saved.")
		return nil
	}
	if sm.err != nil {
		return sm.err
	}

	cal, err := session.Finish(ctx)
	if err != nil {
		return err
	}
	if err := cal.Save(path); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(successStyle.Render("Calibration complete!"))
	fmt.Printf("Saved to %s\n", path)
	fmt.Println()
	fmt.Println("Make it talk with: " + headerStyle.Render(
		fmt.Sprintf("armtalk talk --port %s --id %s \"Hello\"", c.Port, c.ID)))
	return nil
}

func printOffsets(offsets map[robot.MotorName]int) {
	rows := make([][]string, 0, len(offsets))
	for _, name := range robot.AllMotors() {
		rows = append(rows, []string{string(name), fmt.Sprintf("%d", offsets[name])})
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Motor", "Homing offset").
		Rows(rows...)
	fmt.Println(t.Render())
	fmt.Println()
}

func waitForUser(prompt string) {
	fmt.Println(prompt)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("").
				Affirmative("Continue").
				Negative("").
				Value(new(bool)),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Println()
		os.Exit(0)
	}
}

// Sweep TUI

type sweepModel struct {
	ctx      context.Context
	session  *robot.Session
	sampler  robot.Sampler
	poll     bool
	err      error
	aborted  bool
	quitting bool
	recorded int
}

type tickMsg time.Time

func newSweepModel(ctx context.Context, session *robot.Session, b bus.Bus, poll bool) sweepModel {
	checkpoint := robot.CheckpointSampler{Bus: b, IDs: session.IDs()}
	var sampler robot.Sampler = &checkpoint
	if poll {
		sampler = &robot.PollSampler{CheckpointSampler: checkpoint}
	}
	return sweepModel{ctx: ctx, session: session, sampler: sampler, poll: poll}
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m sweepModel) Init() tea.Cmd {
	if m.poll {
		return tick()
	}
	return nil
}

func (m sweepModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter":
			m.quitting = true
			return m, tea.Quit
		case "q", "ctrl+c":
			m.aborted = true
			m.quitting = true
			return m, tea.Quit
		case " ":
			if !m.poll {
				if err := m.session.Observe(m.ctx, m.sampler); err != nil {
					m.err = err
					m.quitting = true
					return m, tea.Quit
				}
				m.recorded++
			}
		}

	case tickMsg:
		if err := m.session.Observe(m.ctx, m.sampler); err != nil {
			m.err = err
			m.quitting = true
			return m, tea.Quit
		}
		m.recorded++
		return m, tick()
	}

	return m, nil
}

func (m sweepModel) View() string {
	if m.quitting {
		return ""
	}

	tableHeaderStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	tableMotorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	tableCellStyle := lipgloss.NewStyle().Padding(0, 1)
	tableCurrentStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Padding(0, 1)
	tableRangeGoodStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Padding(0, 1)
	tableRangeLowStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Padding(0, 1)

	trackers := m.session.Trackers()
	rows := make([][]string, 0, len(trackers))
	ranges := make([]int, 0, len(trackers))
	for _, name := range robot.AllMotors() {
		tr := trackers[name]
		if tr == nil {
			continue
		}
		min, max := tr.Limits()
		ranges = append(ranges, max-min)
		rows = append(rows, []string{
			string(name),
			fmt.Sprintf("%d", tr.Current()),
			fmt.Sprintf("%d", min),
			fmt.Sprintf("%d", max),
			fmt.Sprintf("%d", max-min),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Motor", "Current", "Min", "Max", "Range").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			switch col {
			case 0:
				return tableMotorStyle
			case 1:
				return tableCurrentStyle
			case 4:
				if row >= 0 && row < len(ranges) && ranges[row] > 500 {
					return tableRangeGoodStyle
				}
				return tableRangeLowStyle
			default:
				return tableCellStyle
			}
		})

	var sb strings.Builder
	sb.WriteString(t.Render())
	sb.WriteString("\n\n")
	if m.poll {
		sb.WriteString(dimStyle.Render("Press Enter when done, q to abort"))
	} else {
		sb.WriteString(dimStyle.Render(fmt.Sprintf(
			"%d checkpoints recorded  ·  Space = record pose, Enter = done, q = abort", m.recorded)))
	}
	return sb.String()
}
