// Package tui provides the interactive debug viewer: a file browser to
// pick a song (no patch bank is picked or loaded), then a live view of the
// engine's channel and voice tables while it plays, in the style of
// the original player's text displays.
package tui

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/oplcore/ymfdi/internal/audio"
	"github.com/oplcore/ymfdi/internal/engine"
)

const sampleRate = 49716

type viewMode int

const (
	fileBrowserMode viewMode = iota
	playerMode
)

const (
	keyUp   = "up"
	keyDown = "down"
)

// tickMsg drives the player view's periodic refresh.
type tickMsg time.Time

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	dirStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00AAFF")).
			Bold(true)

	songStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00")).
			Bold(true)
)

var songExtensions = []string{".mid", ".midi", ".rmi", ".mus", ".xmi"}

// model is the top-level bubbletea model: a file browser that hands
// off to a player once a song is chosen.
type model struct {
	mode   viewMode
	browse fileBrowserModel
	player playerModel
	width  int
	height int
}

type fileInfo struct {
	name  string
	path  string
	isDir bool
}

type fileBrowserModel struct {
	currentDir  string
	files       []fileInfo
	cursor      int
	viewportTop int
	message     string
}

// playerModel owns the engine and its audio sink once a song is
// loaded; Update ticks it forward and refreshes the display tables.
type playerModel struct {
	eng      *engine.Engine
	sink     *audio.Sink
	songPath string
	bankPath string
	message  string
	paused   bool
}

// InitialModel builds the file browser starting in the current
// working directory.
func InitialModel() tea.Model {
	dir, err := os.Getwd()
	if err != nil {
		dir = "."
	}
	fb := fileBrowserModel{currentDir: dir}
	fb.loadFiles()
	return model{mode: fileBrowserMode, browse: fb}
}

func hasSongExtension(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range songExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func (fb *fileBrowserModel) loadFiles() {
	fb.files = fb.files[:0]
	if fb.currentDir != "/" {
		fb.files = append(fb.files, fileInfo{name: "..", path: filepath.Dir(fb.currentDir), isDir: true})
	}

	entries, err := os.ReadDir(fb.currentDir)
	if err != nil {
		fb.message = fmt.Sprintf("error reading directory: %v", err)
		return
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if entry.IsDir() || hasSongExtension(entry.Name()) {
			fb.files = append(fb.files, fileInfo{
				name:  entry.Name(),
				path:  filepath.Join(fb.currentDir, entry.Name()),
				isDir: entry.IsDir(),
			})
		}
	}
	fb.adjustBounds()
}

func (fb *fileBrowserModel) adjustBounds() {
	if fb.cursor >= len(fb.files) && len(fb.files) > 0 {
		fb.cursor = len(fb.files) - 1
	}
	if fb.cursor < 0 {
		fb.cursor = 0
	}
	if fb.viewportTop > fb.cursor {
		fb.viewportTop = fb.cursor
	}
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		if m.mode == playerMode {
			return m, tickEvery()
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "q":
			if m.mode == playerMode {
				m.mode = fileBrowserMode
				m.player = playerModel{}
				return m, nil
			}
			return m, tea.Quit
		}
		switch m.mode {
		case fileBrowserMode:
			return m.updateBrowser(msg)
		case playerMode:
			return m.updatePlayer(msg)
		}
	}
	return m, nil
}

func (m model) updateBrowser(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	fb := &m.browse
	switch msg.String() {
	case keyUp, "k":
		if fb.cursor > 0 {
			fb.cursor--
			if fb.cursor < fb.viewportTop {
				fb.viewportTop = fb.cursor
			}
		}
	case keyDown, "j":
		if fb.cursor < len(fb.files)-1 {
			fb.cursor++
			maxVisible := m.height - 9
			if maxVisible < 5 {
				maxVisible = 5
			}
			if fb.cursor >= fb.viewportTop+maxVisible {
				fb.viewportTop = fb.cursor - maxVisible + 1
			}
		}
	case "enter":
		if len(fb.files) == 0 {
			return m, nil
		}
		selected := fb.files[fb.cursor]
		if selected.isDir {
			fb.currentDir = selected.path
			fb.cursor = 0
			fb.viewportTop = 0
			fb.message = ""
			fb.loadFiles()
			return m, nil
		}
		pm, err := loadPlayer(selected.path)
		if err != nil {
			fb.message = fmt.Sprintf("error loading %s: %v", selected.name, err)
			return m, nil
		}
		m.mode = playerMode
		m.player = pm
		return m, tickEvery()
	}
	return m, nil
}

func loadPlayer(songPath string) (playerModel, error) {
	data, err := os.ReadFile(songPath)
	if err != nil {
		return playerModel{}, fmt.Errorf("reading song: %w", err)
	}

	eng := engine.New(4, engine.ChipOPL3)
	if ok, err := eng.LoadSequence(data); !ok {
		return playerModel{}, fmt.Errorf("parsing song: %w", err)
	}

	sink, err := audio.NewSink(eng, sampleRate)
	if err != nil {
		return playerModel{}, fmt.Errorf("opening audio: %w", err)
	}

	return playerModel{eng: eng, sink: sink, songPath: songPath}, nil
}

func (m model) updatePlayer(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	p := &m.player
	switch msg.String() {
	case " ":
		p.paused = !p.paused
		p.eng.SetGain(gainFor(p.paused))
	case "r":
		p.eng.Reset()
		p.message = "reset"
	case "l":
		p.eng.SetLoop(true)
		p.message = "looping enabled"
	}
	return m, nil
}

func gainFor(paused bool) float64 {
	if paused {
		return 0
	}
	return 1
}

func tickEvery() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) View() string {
	switch m.mode {
	case fileBrowserMode:
		return m.viewBrowser()
	case playerMode:
		return m.viewPlayer()
	default:
		return "unknown mode"
	}
}

func (m model) viewBrowser() string {
	fb := m.browse
	var b strings.Builder
	b.WriteString(titleStyle.Render("ymfdi - OPL song browser") + "\n\n")
	fmt.Fprintf(&b, "Directory: %s\n\n", fb.currentDir)

	if len(fb.files) == 0 {
		b.WriteString("No songs or directories found.\n")
	} else {
		maxVisible := m.height - 9
		if maxVisible < 5 {
			maxVisible = 5
		}
		start := fb.viewportTop
		end := start + maxVisible
		if end > len(fb.files) {
			end = len(fb.files)
		}
		for i := start; i < end; i++ {
			f := fb.files[i]
			cursor := " "
			if i == fb.cursor {
				cursor = ">"
			}
			name := f.name
			if f.isDir {
				name = dirStyle.Render(name + "/")
			} else {
				name = songStyle.Render(name)
			}
			line := fmt.Sprintf("%s %s", cursor, name)
			if i == fb.cursor {
				b.WriteString(selectedStyle.Render(line) + "\n")
			} else {
				b.WriteString(line + "\n")
			}
		}
	}

	b.WriteString("\n")
	if fb.message != "" {
		b.WriteString(errorStyle.Render(fb.message) + "\n")
	}
	b.WriteString("\n" + helpStyle.Render("up/down or j/k: move • enter: play • q: quit"))
	return b.String()
}

func (m model) viewPlayer() string {
	p := m.player
	var b strings.Builder
	b.WriteString(titleStyle.Render("Now playing") + "\n\n")
	fmt.Fprintf(&b, "Song: %s\n", p.songPath)

	status := "Playing"
	if p.paused {
		status = "Paused"
	}
	b.WriteString(statusStyle.Render("Status: "+status) + "\n\n")

	if p.eng != nil {
		b.WriteString(p.eng.DisplayChannels())
		b.WriteString("\n")
		b.WriteString(p.eng.DisplayVoices())
	}

	if p.message != "" {
		b.WriteString("\n" + errorStyle.Render(p.message) + "\n")
	}

	b.WriteString("\n" + helpStyle.Render("space: pause/resume • r: reset • l: enable loop • q: back"))
	return b.String()
}
