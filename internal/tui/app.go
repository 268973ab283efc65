// Package tui is the terminal adapter over the core: a searchable farm
// list, gated detail view, statistics, and queue status. It stands in
// for the map UI; everything interesting happens in the packages it
// wires together.
package tui

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/avlasov/farmmap/internal/access"
	"github.com/avlasov/farmmap/internal/farms"
	"github.com/avlasov/farmmap/internal/syncer"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true)
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Background(lipgloss.Color("236")).Padding(0, 1)
	footerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Background(lipgloss.Color("238")).Padding(0, 1)
	lockedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true)
	offlineStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	sectionStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	selectedStyle = lipgloss.NewStyle().Bold(true)
)

type viewMode int

const (
	modeList viewMode = iota
	modeDetail
	modeStats
	modePrompt
)

type keyMap struct {
	Search   key.Binding
	Enter    key.Binding
	Stats    key.Binding
	Add      key.Binding
	Review   key.Binding
	Flag     key.Binding
	Type     key.Binding
	Operator key.Binding
	Near     key.Binding
	Login    key.Binding
	Delete   key.Binding
	Toggle   key.Binding
	Back     key.Binding
	Quit     key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Search:   key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
		Enter:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "details")),
		Stats:    key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "stats")),
		Add:      key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "add farm")),
		Review:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "review")),
		Flag:     key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "report")),
		Type:     key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "type")),
		Operator: key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "operator")),
		Near:     key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "nearby")),
		Login:    key.NewBinding(key.WithKeys("l"), key.WithHelp("l", "sign in")),
		Delete:   key.NewBinding(key.WithKeys("D"), key.WithHelp("D", "delete account")),
		Toggle:   key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "online/offline")),
		Back:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// Geocoder resolves a postcode to map coordinates.
type Geocoder interface {
	Lookup(ctx context.Context, postcode string) (farms.Coords, bool, error)
}

// Deps is everything the adapter needs from the core.
type Deps struct {
	Coordinator   *syncer.Coordinator
	Catalog       *farms.Catalog
	Gate          *access.Gate
	Geocoder      Geocoder
	FlagThreshold int
}

type loadedMsg struct {
	res syncer.LoadResult
	err error
}

type drainMsg struct {
	res syncer.DrainResult
	err error
}

type outcomeMsg struct {
	out syncer.Outcome
	err error
}

type wentOfflineMsg struct {
	pending int
	err     error
}

type nearbyMsg struct {
	radius *farms.RadiusFilter
	err    error
}

// promptField is one step of an input wizard.
type promptField struct {
	label string
	value string
}

type model struct {
	ctx  context.Context
	deps Deps
	keys keyMap

	mode     viewMode
	status   string
	visible  []farms.Farm
	cursor   int
	topIndex int
	width    int
	height   int
	online   bool
	pending  int

	search    textinput.Model
	searching bool

	typeFilter string
	operFilter string
	radius     *farms.RadiusFilter

	detail *farms.Farm

	prompt      []promptField
	promptIndex int
	promptInput textinput.Model
	promptDone  func(values []string) tea.Cmd
}

// New builds the program model.
func New(ctx context.Context, deps Deps) tea.Model {
	search := textinput.New()
	search.Placeholder = "name, postcode, operator..."
	search.CharLimit = 64
	return model{
		ctx:    ctx,
		deps:   deps,
		keys:   newKeyMap(),
		search: search,
		online: true,
		status: "Loading farms...",
	}
}

func (m model) Init() tea.Cmd {
	return func() tea.Msg {
		res, err := m.deps.Coordinator.Start(m.ctx)
		return loadedMsg{res: res, err: err}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case loadedMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("Load failed: %v", msg.err)
			return m, nil
		}
		m.online = !msg.res.Degraded
		m.visible = m.deps.Catalog.All()
		m.cursor, m.topIndex = 0, 0
		switch {
		case msg.res.FromCache && msg.res.Stale:
			m.status = fmt.Sprintf("Offline: showing %d farms from a stale cache", msg.res.Farms)
		case msg.res.FromCache:
			m.status = fmt.Sprintf("Offline: showing %d cached farms", msg.res.Farms)
		case msg.res.Degraded:
			m.status = "Offline and no cached data yet"
		default:
			m.status = fmt.Sprintf("Loaded %d farms", msg.res.Farms)
		}
		if !msg.res.Degraded {
			// Writes queued in a previous run replay now.
			return m, func() tea.Msg {
				res, err := m.deps.Coordinator.Drain(m.ctx)
				return drainMsg{res: res, err: err}
			}
		}
		return m, nil

	case wentOfflineMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("Sync failed: %v", msg.err)
			return m, nil
		}
		m.pending = msg.pending
		m.status = "Offline mode: writes will be queued"
		return m, nil

	case nearbyMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("Nearby: %v", msg.err)
			return m, nil
		}
		m.radius = msg.radius
		m.visible = m.applyFilters()
		m.cursor, m.topIndex = 0, 0
		m.status = fmt.Sprintf("%d farm(s) within %.0f km, nearest first", len(m.visible), msg.radius.Km)
		return m, nil

	case drainMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("Sync failed: %v", msg.err)
			return m, nil
		}
		m.pending = msg.res.Remaining
		m.visible = m.applyFilters()
		if msg.res.Replayed == 0 && msg.res.Remaining == 0 && len(msg.res.Rejected) == 0 {
			return m, nil
		}
		parts := []string{fmt.Sprintf("Sent %d queued write(s)", msg.res.Replayed)}
		for _, r := range msg.res.Rejected {
			parts = append(parts, "rejected: "+r)
		}
		if msg.res.Remaining > 0 {
			parts = append(parts, fmt.Sprintf("%d still pending", msg.res.Remaining))
		}
		m.status = strings.Join(parts, "; ")
		return m, nil

	case outcomeMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("Error: %v", msg.err)
			return m, nil
		}
		switch msg.out.Status {
		case syncer.StatusQueued:
			m.pending++
			m.status = "Queued for later: " + msg.out.Message
		case syncer.StatusRejected:
			m.status = "Rejected: " + msg.out.Message
		case syncer.StatusNotGuaranteed:
			m.status = "Warning: " + msg.out.Message
		default:
			m.visible = m.applyFilters()
			m.status = nonEmpty(msg.out.Message, "Done")
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.mode == modePrompt {
		return m.updatePrompt(msg)
	}
	if m.searching {
		switch msg.String() {
		case "esc":
			m.searching = false
			m.search.Blur()
			return m, nil
		case "enter":
			m.searching = false
			m.search.Blur()
			m.visible = m.applyFilters()
			m.cursor, m.topIndex = 0, 0
			if len(m.visible) == 0 {
				if hint := m.deps.Catalog.Suggest(m.search.Value()); hint != "" {
					m.status = fmt.Sprintf("No matches. Did you mean %q?", hint)
				} else {
					m.status = "No matches"
				}
			} else {
				m.status = fmt.Sprintf("%d farm(s) match", len(m.visible))
			}
			return m, nil
		}
		var cmd tea.Cmd
		m.search, cmd = m.search.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Back):
		if m.mode == modeList {
			if m.typeFilter != "" || m.operFilter != "" || m.radius != nil || m.search.Value() != "" {
				m.typeFilter, m.operFilter, m.radius = "", "", nil
				m.search.SetValue("")
				m.visible = m.deps.Catalog.All()
				m.cursor, m.topIndex = 0, 0
				m.status = "Filters cleared"
			}
			return m, nil
		}
		m.mode = modeList
		m.detail = nil
		return m, nil
	case key.Matches(msg, m.keys.Search):
		m.searching = true
		m.mode = modeList
		return m, m.search.Focus()
	case key.Matches(msg, m.keys.Stats):
		m.mode = modeStats
		return m, nil
	case key.Matches(msg, m.keys.Toggle):
		m.online = !m.online
		online := m.online
		if online {
			m.status = "Back online, sending queued writes..."
			return m, func() tea.Msg {
				res, err := m.deps.Coordinator.SetOnline(m.ctx, online)
				return drainMsg{res: res, err: err}
			}
		}
		return m, func() tea.Msg {
			_, err := m.deps.Coordinator.SetOnline(m.ctx, online)
			return wentOfflineMsg{pending: m.deps.Coordinator.Pending(m.ctx), err: err}
		}
	case key.Matches(msg, m.keys.Type):
		m.mode = modeList
		m.typeFilter = nextTag(m.typeFilter)
		m.visible = m.applyFilters()
		m.cursor, m.topIndex = 0, 0
		if m.typeFilter == "" {
			m.status = "Type filter off"
		} else {
			m.status = fmt.Sprintf("Type: %s (%d match)", farms.TypeName(m.typeFilter), len(m.visible))
		}
		return m, nil
	case key.Matches(msg, m.keys.Operator):
		m.mode = modeList
		m.operFilter = nextOperator(m.deps.Catalog.All(), m.operFilter)
		m.visible = m.applyFilters()
		m.cursor, m.topIndex = 0, 0
		if m.operFilter == "" {
			m.status = "Operator filter off"
		} else {
			m.status = fmt.Sprintf("Operator: %s (%d match)", m.operFilter, len(m.visible))
		}
		return m, nil
	case key.Matches(msg, m.keys.Near):
		return m.startNearbyPrompt()
	case key.Matches(msg, m.keys.Add):
		return m.startFarmPrompt()
	case key.Matches(msg, m.keys.Login):
		return m.startLoginPrompt()
	case key.Matches(msg, m.keys.Delete):
		if !m.deps.Gate.CanViewDetails() {
			m.status = "No account to delete"
			return m, nil
		}
		if err := m.deps.Coordinator.DeleteAccount(m.ctx); err != nil {
			m.status = fmt.Sprintf("Delete failed: %v", err)
			return m, nil
		}
		m.pending = 0
		m.status = "Account deleted; details are locked again"
		return m, nil
	}

	switch m.mode {
	case modeList:
		return m.updateList(msg)
	case modeDetail:
		return m.updateDetail(msg)
	}
	return m, nil
}

func (m model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
			if m.cursor < m.topIndex {
				m.topIndex = m.cursor
			}
		}
	case "down", "j":
		if m.cursor < len(m.visible)-1 {
			m.cursor++
			if m.cursor >= m.topIndex+m.visibleRows() {
				m.topIndex++
			}
		}
	case "enter":
		if m.cursor < len(m.visible) {
			f := m.visible[m.cursor]
			m.detail = &f
			m.mode = modeDetail
		}
	}
	return m, nil
}

func (m model) updateDetail(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Review):
		if m.detail != nil {
			return m.startReviewPrompt(m.detail.ID)
		}
	case key.Matches(msg, m.keys.Flag):
		if m.detail == nil || !m.deps.Gate.CanViewDetails() {
			m.status = "Sign in or contribute before reporting"
			return m, nil
		}
		visible := m.detail.VisibleReviews(m.deps.FlagThreshold)
		if len(visible) == 0 {
			m.status = "No review to report"
			return m, nil
		}
		id := visible[0].ID
		return m, func() tea.Msg {
			out, err := m.deps.Coordinator.FlagReview(m.ctx, id)
			return outcomeMsg{out: out, err: err}
		}
	}
	return m, nil
}

func (m model) startNearbyPrompt() (tea.Model, tea.Cmd) {
	fields := []promptField{
		{label: "Your postcode"},
		{label: "Radius, km", value: "50"},
	}
	return m.startPrompt(fields, func(values []string) tea.Cmd {
		postcode := values[0]
		km, err := strconv.ParseFloat(strings.TrimSpace(values[1]), 64)
		if err != nil || km <= 0 {
			km = 50
		}
		return func() tea.Msg {
			coords, ok, err := m.deps.Geocoder.Lookup(m.ctx, postcode)
			if err != nil {
				return nearbyMsg{err: err}
			}
			if !ok {
				return nearbyMsg{err: fmt.Errorf("postcode %q not found", postcode)}
			}
			return nearbyMsg{radius: &farms.RadiusFilter{Center: coords, Km: km}}
		}
	})
}

func (m model) startLoginPrompt() (tea.Model, tea.Cmd) {
	fields := []promptField{{label: "Email"}}
	return m.startPrompt(fields, func(values []string) tea.Cmd {
		email := values[0]
		return func() tea.Msg {
			out, err := m.deps.Coordinator.Login(m.ctx, email)
			return outcomeMsg{out: out, err: err}
		}
	})
}

func (m model) startFarmPrompt() (tea.Model, tea.Cmd) {
	email, _ := m.deps.Gate.Identity()
	tags := make([]string, len(farms.Types))
	for i, t := range farms.Types {
		tags[i] = t.Tag
	}
	fields := []promptField{
		{label: "Farm name"},
		{label: "Type (" + strings.Join(tags, ", ") + ")"},
		{label: "Address"},
		{label: "Postcode"},
		{label: "Operators (comma separated)"},
		{label: "Email", value: email},
	}
	return m.startPrompt(fields, func(values []string) tea.Cmd {
		draft := farms.FarmDraft{
			Name:      values[0],
			Type:      strings.ToLower(strings.TrimSpace(values[1])),
			Address:   values[2],
			Postcode:  values[3],
			Operators: splitList(values[4]),
			UserEmail: values[5],
		}
		return func() tea.Msg {
			// Best effort: an unmappable farm is still a valid submission.
			var coords *farms.Coords
			if c, ok, err := m.deps.Geocoder.Lookup(m.ctx, draft.Postcode); err == nil && ok {
				coords = &c
			}
			out, err := m.deps.Coordinator.SubmitFarm(m.ctx, draft, coords)
			return outcomeMsg{out: out, err: err}
		}
	})
}

func (m model) startReviewPrompt(farmID string) (tea.Model, tea.Cmd) {
	email, _ := m.deps.Gate.Identity()
	fields := []promptField{
		{label: "Rating (1-5)"},
		{label: "Comment"},
		{label: "Earnings, £ (optional)"},
		{label: "Email", value: email},
	}
	return m.startPrompt(fields, func(values []string) tea.Cmd {
		rating, _ := strconv.Atoi(strings.TrimSpace(values[0]))
		draft := farms.ReviewDraft{
			FarmID:    farmID,
			Rating:    rating,
			Comment:   values[1],
			Earnings:  values[2],
			UserEmail: values[3],
		}
		return func() tea.Msg {
			out, err := m.deps.Coordinator.SubmitReview(m.ctx, draft)
			return outcomeMsg{out: out, err: err}
		}
	})
}

func (m model) startPrompt(fields []promptField, done func(values []string) tea.Cmd) (tea.Model, tea.Cmd) {
	m.prompt = fields
	m.promptIndex = 0
	m.promptDone = done
	m.promptInput = textinput.New()
	m.promptInput.SetValue(fields[0].value)
	m.mode = modePrompt
	return m, m.promptInput.Focus()
}

func (m model) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = modeList
		m.status = "Cancelled"
		return m, nil
	case "enter":
		m.prompt[m.promptIndex].value = m.promptInput.Value()
		m.promptIndex++
		if m.promptIndex < len(m.prompt) {
			m.promptInput = textinput.New()
			m.promptInput.SetValue(m.prompt[m.promptIndex].value)
			return m, m.promptInput.Focus()
		}
		values := make([]string, len(m.prompt))
		for i, f := range m.prompt {
			values[i] = f.value
		}
		m.mode = modeList
		m.status = "Submitting..."
		return m, m.promptDone(values)
	}
	var cmd tea.Cmd
	m.promptInput, cmd = m.promptInput.Update(msg)
	return m, cmd
}

// applyFilters recomputes the visible set: search first, then the
// active filters as an intersection, nearest first when a radius is on.
func (m model) applyFilters() []farms.Farm {
	set := m.deps.Catalog.Apply(farms.FilterState{
		Search:   m.search.Value(),
		Type:     m.typeFilter,
		Operator: m.operFilter,
		Radius:   m.radius,
	})
	if m.radius != nil {
		set = farms.NearestFirst(m.radius.Center, set)
	}
	return set
}

// nextTag cycles the type filter through every known type and back off.
func nextTag(current string) string {
	for i, t := range farms.Types {
		if t.Tag == current {
			if i+1 < len(farms.Types) {
				return farms.Types[i+1].Tag
			}
			return ""
		}
	}
	return farms.Types[0].Tag
}

// nextOperator cycles through the operators present in the collection,
// alphabetically, and back off.
func nextOperator(set []farms.Farm, current string) string {
	seen := make(map[string]bool)
	var ops []string
	for _, f := range set {
		for _, op := range f.Operators {
			if !seen[op] {
				seen[op] = true
				ops = append(ops, op)
			}
		}
	}
	sort.Strings(ops)
	for i, op := range ops {
		if op == current {
			if i+1 < len(ops) {
				return ops[i+1]
			}
			return ""
		}
	}
	if len(ops) == 0 {
		return ""
	}
	return ops[0]
}

func (m model) filterSummary() string {
	var parts []string
	if m.typeFilter != "" {
		parts = append(parts, "type: "+farms.TypeName(m.typeFilter))
	}
	if m.operFilter != "" {
		parts = append(parts, "operator: "+m.operFilter)
	}
	if m.radius != nil {
		parts = append(parts, fmt.Sprintf("within %.0f km", m.radius.Km))
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "  ") + "  (esc clears)"
}

func (m model) visibleRows() int {
	if m.height == 0 {
		return 15
	}
	rows := m.height - 8
	if rows < 3 {
		rows = 3
	}
	return rows
}

func (m model) View() string {
	var body string
	switch m.mode {
	case modeDetail:
		body = m.viewDetail()
	case modeStats:
		body = m.viewStats()
	case modePrompt:
		body = m.viewPrompt()
	default:
		body = m.viewList()
	}
	return body + "\n" + m.viewStatusBar() + "\n" + m.viewFooter()
}

func (m model) viewList() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("UK Farms"))
	b.WriteString("\n")
	if m.searching || m.search.Value() != "" {
		b.WriteString("Search: " + m.search.View() + "\n")
	}
	if summary := m.filterSummary(); summary != "" {
		b.WriteString(lockedStyle.Render(summary) + "\n")
	}
	if len(m.visible) == 0 {
		b.WriteString(lockedStyle.Render("No farms to show."))
		return b.String()
	}
	end := m.topIndex + m.visibleRows()
	if end > len(m.visible) {
		end = len(m.visible)
	}
	for i := m.topIndex; i < end; i++ {
		f := m.visible[i]
		line := fmt.Sprintf("%s %-28s %-16s %-8s", farms.TypeEmoji(f.Type), truncate(f.Name, 28), farms.TypeName(f.Type), f.Postcode)
		if m.deps.Gate.CanViewDetails() {
			visible := f.VisibleReviews(m.deps.FlagThreshold)
			line += fmt.Sprintf(" %d review(s)", len(visible))
		}
		prefix := "  "
		if i == m.cursor {
			prefix = "> "
			line = selectedStyle.Render(line)
		}
		b.WriteString(prefix + line + "\n")
	}
	return b.String()
}

func (m model) viewDetail() string {
	f := m.detail
	if f == nil {
		return "No farm selected."
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("%s %s", farms.TypeEmoji(f.Type), f.Name)))
	b.WriteString("\n" + farms.TypeName(f.Type) + " · " + farms.RegionForPostcode(f.Postcode) + "\n\n")

	if !m.deps.Gate.CanViewDetails() {
		// Pre-gate only name/type/coarse location are shown.
		b.WriteString(sectionStyle.Render(strings.Join([]string{
			"Fair exchange: share your experience to see others'.",
			"",
			"Add a farm or review to unlock addresses, reviews and",
			"earnings. Press r to add a review, l to sign in.",
		}, "\n")))
		return b.String()
	}

	b.WriteString(fmt.Sprintf("Address:   %s, %s\n", f.Address, f.Postcode))
	b.WriteString(fmt.Sprintf("Operators: %s\n", strings.Join(f.Operators, ", ")))
	visible := f.VisibleReviews(m.deps.FlagThreshold)
	b.WriteString(fmt.Sprintf("\nReviews (%d):\n", len(visible)))
	if len(visible) == 0 {
		b.WriteString(lockedStyle.Render("No worker reviews yet.") + "\n")
	}
	for _, rv := range visible {
		stars := rv.Rating
		if stars == 0 {
			stars = 3
		}
		b.WriteString(fmt.Sprintf("  %s %s\n", strings.Repeat("⭐", stars), rv.Date.Format("02 Jan 2006")))
		if rv.Comment != "" {
			b.WriteString("    " + rv.Comment + "\n")
		}
		if rv.Earnings != "" {
			b.WriteString("    Earned: " + rv.Earnings + "\n")
		}
		if rv.Duration != "" {
			b.WriteString("    Duration: " + rv.Duration + "\n")
		}
	}
	return b.String()
}

func (m model) viewStats() string {
	stats := farms.Aggregate(m.visible, m.deps.FlagThreshold)
	var b strings.Builder
	b.WriteString(titleStyle.Render("Statistics") + "\n")
	b.WriteString(fmt.Sprintf("Farms: %d   Reviews: %d   Mean rating: %.1f\n\n", stats.Total, stats.TotalReviews, stats.MeanRating))

	b.WriteString("By type:\n")
	for _, t := range farms.Types {
		if n := stats.ByType[t.Name]; n > 0 {
			b.WriteString(fmt.Sprintf("  %s %-16s %s\n", t.Emoji, t.Name, strings.Repeat("█", n)))
		}
	}
	b.WriteString("\nTop rated:\n")
	for i, r := range stats.TopRated {
		b.WriteString(fmt.Sprintf("  %d. %s (%.1f, %d reviews)\n", i+1, r.Farm.Name, r.MeanRating, r.ReviewCount))
	}
	b.WriteString("\nTop earnings:\n")
	for i, r := range stats.TopEarnings {
		b.WriteString(fmt.Sprintf("  %d. %s (£%d)\n", i+1, r.Farm.Name, r.MaxEarnings))
	}
	return b.String()
}

func (m model) viewPrompt() string {
	f := m.prompt[m.promptIndex]
	return titleStyle.Render(f.label) + "\n" + m.promptInput.View() + "\n" + lockedStyle.Render("enter to continue, esc to cancel")
}

func (m model) viewStatusBar() string {
	state := "online"
	if !m.online {
		state = offlineStyle.Render("OFFLINE")
	}
	who := "not signed in"
	if id, ok := m.deps.Gate.Identity(); ok {
		who = fmt.Sprintf("%s (%d contribution(s))", id, m.deps.Gate.Contributions())
	}
	left := fmt.Sprintf("%s | %s", state, who)
	if m.pending > 0 {
		left += fmt.Sprintf(" | %d pending", m.pending)
	}
	return statusStyle.Render(left + " | " + m.status)
}

func (m model) viewFooter() string {
	bindings := []key.Binding{m.keys.Search, m.keys.Type, m.keys.Operator, m.keys.Near, m.keys.Enter, m.keys.Stats, m.keys.Add, m.keys.Review, m.keys.Flag, m.keys.Login, m.keys.Toggle, m.keys.Back, m.keys.Quit}
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return footerStyle.Render(strings.Join(parts, "  "))
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func truncate(s string, width int) string {
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	return string(runes[:width-1]) + "…"
}

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}
