// Package tui is the operator-facing presentation adapter. It consumes
// engine snapshots and sink events read-only and renders them; every slot
// mutation goes through the coordinator, never through local edits.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/FASTSHIFT/FPBInject-sub001/internal/model"
	"github.com/FASTSHIFT/FPBInject-sub001/internal/render"
	"github.com/FASTSHIFT/FPBInject-sub001/internal/syncengine"
)

const maxLogLines = 500

type (
	// ToolLogEvent carries one textual log line from the device.
	ToolLogEvent string
	// RawEvent carries normalized raw serial bytes.
	RawEvent string
	// SlotsEvent carries a fresh table snapshot after an applied merge.
	SlotsEvent struct {
		Records []model.SlotRecord
		Version int64
	}
	// MemoryEvent carries updated patch pool state.
	MemoryEvent model.MemoryInfo

	statusMsg string
)

// Sinks adapts the engine's sinks onto the TUI event channel. Sends never
// block a poll cycle; under backpressure events are dropped and the next
// snapshot heals the view.
func Sinks(ch chan<- tea.Msg) syncengine.Sinks {
	send := func(msg tea.Msg) {
		select {
		case ch <- msg:
		default:
		}
	}
	return syncengine.Sinks{
		ToolLog: func(line string) { send(ToolLogEvent(line)) },
		RawData: func(chunk string) { send(RawEvent(chunk)) },
		SlotsChanged: func(records []model.SlotRecord, version int64) {
			send(SlotsEvent{Records: records, Version: version})
		},
		MemoryChanged: func(info model.MemoryInfo) { send(MemoryEvent(info)) },
	}
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	paneStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	promptStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
)

type Model struct {
	engine      *syncengine.Engine
	coordinator *syncengine.Coordinator
	events      <-chan tea.Msg

	records    []model.SlotRecord
	version    int64
	memory     *model.MemoryInfo
	selected   int
	confirming bool
	status     string

	logLines []string
	logView  viewport.Model
	rawText  string
	rawView  viewport.Model

	width  int
	height int
	ready  bool
}

func New(engine *syncengine.Engine, coordinator *syncengine.Coordinator, events <-chan tea.Msg) Model {
	records, version := engine.Snapshot()
	return Model{
		engine:      engine,
		coordinator: coordinator,
		events:      events,
		records:     records,
		version:     version,
	}
}

// WithSelected returns a copy with the slot cursor on id, clamped to the
// table bounds. Used to restore the previous session's selection.
func (m Model) WithSelected(id int) Model {
	if id < 0 {
		id = 0
	}
	if id >= len(m.records) {
		id = len(m.records) - 1
		if id < 0 {
			id = 0
		}
	}
	m.selected = id
	return m
}

// Selected reports the slot the cursor is on.
func (m Model) Selected() int {
	return m.selected
}

func (m Model) Init() tea.Cmd {
	return waitEvent(m.events)
}

func waitEvent(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil

	case ToolLogEvent:
		m.logLines = append(m.logLines, string(msg))
		if len(m.logLines) > maxLogLines {
			m.logLines = m.logLines[len(m.logLines)-maxLogLines:]
		}
		m.logView.SetContent(strings.Join(m.logLines, "\n"))
		m.logView.GotoBottom()
		return m, waitEvent(m.events)

	case RawEvent:
		m.rawText += string(msg)
		m.rawView.SetContent(m.rawText)
		m.rawView.GotoBottom()
		return m, waitEvent(m.events)

	case SlotsEvent:
		m.records = msg.Records
		m.version = msg.Version
		return m, waitEvent(m.events)

	case MemoryEvent:
		info := model.MemoryInfo(msg)
		m.memory = &info
		return m, waitEvent(m.events)

	case statusMsg:
		m.status = string(msg)
		return m, nil
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.confirming {
		switch msg.String() {
		case "y", "Y":
			m.confirming = false
			return m, m.clearAllCmd()
		default:
			// Declining is silent: no call, no message.
			m.confirming = false
			return m, nil
		}
	}

	switch msg.String() {
	case "q", "ctrl+c":
		m.engine.Stop()
		return m, tea.Quit
	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}
		return m, nil
	case "down", "j":
		if m.selected < len(m.records)-1 {
			m.selected++
		}
		return m, nil
	case "c":
		return m, m.clearSlotCmd(m.selected)
	case "C":
		m.confirming = true
		return m, nil
	case "pgup":
		m.logView.HalfViewUp()
		return m, nil
	case "pgdown":
		m.logView.HalfViewDown()
		return m, nil
	}
	return m, nil
}

func (m Model) clearSlotCmd(id int) tea.Cmd {
	coordinator := m.coordinator
	return func() tea.Msg {
		if err := coordinator.ClearSlot(context.Background(), id); err != nil {
			return statusMsg(err.Error())
		}
		return statusMsg(fmt.Sprintf("slot %d cleared", id))
	}
}

func (m Model) clearAllCmd() tea.Cmd {
	coordinator := m.coordinator
	return func() tea.Msg {
		if err := coordinator.ClearAllSlots(context.Background()); err != nil {
			return statusMsg(err.Error())
		}
		return statusMsg("all slots cleared")
	}
}

func (m *Model) resize() {
	paneWidth := m.width - 4
	if paneWidth < 20 {
		paneWidth = 20
	}
	paneHeight := (m.height - len(m.records) - 10) / 2
	if paneHeight < 3 {
		paneHeight = 3
	}
	if !m.ready {
		m.logView = viewport.New(paneWidth, paneHeight)
		m.rawView = viewport.New(paneWidth, paneHeight)
		m.logView.SetContent(strings.Join(m.logLines, "\n"))
		m.rawView.SetContent(m.rawText)
		m.ready = true
		return
	}
	m.logView.Width = paneWidth
	m.logView.Height = paneHeight
	m.rawView.Width = paneWidth
	m.rawView.Height = paneHeight
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("fpbmon"))
	b.WriteString(fmt.Sprintf("  slot version %d", m.version))
	b.WriteString("\n\n")
	b.WriteString(render.SlotTable(m.records, m.selected))
	if m.memory != nil {
		b.WriteString(render.Memory(*m.memory))
		b.WriteString("\n")
	}
	if m.ready {
		b.WriteString(paneStyle.Render("tool log\n" + m.logView.View()))
		b.WriteString("\n")
		b.WriteString(paneStyle.Render("raw serial\n" + m.rawView.View()))
		b.WriteString("\n")
	}
	if m.confirming {
		b.WriteString(promptStyle.Render("clear ALL slots? [y/N] "))
		b.WriteString("\n")
	}
	cursors := m.engine.CursorSnapshot()
	b.WriteString(statusStyle.Render(fmt.Sprintf(
		"cursors tool=%d raw=%d | c clear slot, C clear all, q quit", cursors.ToolLog, cursors.RawData)))
	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(statusStyle.Render(m.status))
	}
	return b.String()
}
