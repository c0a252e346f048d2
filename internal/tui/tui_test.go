package tui

import (
	"context"
	"errors"
	"net/http"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biketag-game/biketag-go"
	"github.com/biketag-game/biketag-go/internal/backend"
)

// updateModel is a helper that handles the Update return type.
func updateModel(m Model, msg tea.Msg) (Model, tea.Cmd) {
	newModel, cmd := m.Update(msg)
	return newModel.(Model), cmd
}

// loadTestTags loads tags into the model via tagsMsg.
func loadTestTags(m Model, tags ...*backend.Tag) Model {
	m, _ = updateModel(m, tagsMsg{env: backend.OK(backend.KindBikeTag, tags)})
	return m
}

func testTags() []*backend.Tag {
	return []*backend.Tag{
		{Game: "boise", TagNumber: 1, Slug: "boise-tag-1", FoundPlayer: "ken", FoundLocation: "Ann Morrison Park"},
		{Game: "boise", TagNumber: 3, Slug: "boise-tag-3", MysteryPlayer: "jo", Hint: "near the river"},
		{Game: "boise", TagNumber: 2, Slug: "boise-tag-2", FoundPlayer: "jo", FoundLocation: "Capitol"},
	}
}

func typeText(m Model, s string) Model {
	for _, r := range s {
		m, _ = updateModel(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return m
}

type fakeSource struct {
	env       backend.Envelope[[]*backend.Tag]
	overloads []biketag.Options
	calls     int
}

func (f *fakeSource) GetTags(_ context.Context, _ biketag.Arg, overloads ...biketag.Options) backend.Envelope[[]*backend.Tag] {
	f.calls++
	f.overloads = overloads
	return f.env
}

// TestModel_LoadSortsNewestFirst verifies loaded tags are listed by descending number.
func TestModel_LoadSortsNewestFirst(t *testing.T) {
	model := loadTestTags(New(nil, Options{}), testTags()...)

	require.Len(t, model.items, 3)
	assert.False(t, model.loading)
	assert.Equal(t, 3, model.items[0].TagNumber)
	assert.Equal(t, 2, model.items[1].TagNumber)
	assert.Equal(t, 1, model.items[2].TagNumber)
	assert.Equal(t, backend.KindBikeTag, model.origin)
}

// TestModel_LoadFailure verifies a failure envelope is shown as an error.
func TestModel_LoadFailure(t *testing.T) {
	model := New(nil, Options{})
	model, _ = updateModel(model, tagsMsg{env: backend.Fail[[]*backend.Tag](backend.KindImgur, http.StatusNotFound, backend.ErrNotFound)})

	require.Error(t, model.err)
	assert.ErrorIs(t, model.err, backend.ErrNotFound)
	assert.Contains(t, model.View(), "404")
	assert.Empty(t, model.items)
}

// TestModel_FetchUsesSource verifies the fetch command calls the source with the overloads.
func TestModel_FetchUsesSource(t *testing.T) {
	src := &fakeSource{env: backend.OK(backend.KindSanity, testTags())}
	over := biketag.Options{Source: backend.KindSanity}
	model := New(src, Options{Game: "boise", Overloads: []biketag.Options{over}})

	msg := model.fetchTags()()
	model, _ = updateModel(model, msg)

	assert.Equal(t, 1, src.calls)
	assert.Equal(t, []biketag.Options{over}, src.overloads)
	assert.Len(t, model.items, 3)
	assert.Equal(t, backend.KindSanity, model.origin)
}

// TestModel_FetchWithoutSource verifies a nil source reports an error instead of panicking.
func TestModel_FetchWithoutSource(t *testing.T) {
	msg := New(nil, Options{}).fetchTags()()

	tm, ok := msg.(tagsMsg)
	require.True(t, ok)
	assert.False(t, tm.env.Success)
	assert.True(t, errors.Is(tm.env.Error, ErrNoSource))
}

// TestModel_Reload verifies Ctrl+R triggers another fetch.
func TestModel_Reload(t *testing.T) {
	model := loadTestTags(New(nil, Options{}), testTags()...)

	model, cmd := updateModel(model, tea.KeyMsg{Type: tea.KeyCtrlR})

	assert.True(t, model.loading)
	assert.NotNil(t, cmd)
}

// TestModel_Filter verifies typing narrows the list by player, location, hint, or number.
func TestModel_Filter(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []int
	}{
		{"player", "jo", []int{3, 2}},
		{"location", "capitol", []int{2}},
		{"hint", "river", []int{3}},
		{"number", "#1", []int{1}},
		{"bare number", "2", []int{2}},
		{"no match", "zzz", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := loadTestTags(New(nil, Options{}), testTags()...)
			model = typeText(model, tt.query)

			var got []int
			for _, tag := range model.items {
				got = append(got, tag.TagNumber)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestModel_FilterClampsCursor verifies the cursor stays in range after filtering.
func TestModel_FilterClampsCursor(t *testing.T) {
	model := loadTestTags(New(nil, Options{}), testTags()...)
	model, _ = updateModel(model, tea.KeyMsg{Type: tea.KeyDown})
	model, _ = updateModel(model, tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 2, model.cursor)

	model = typeText(model, "capitol")

	assert.Equal(t, 0, model.cursor)
	require.NotNil(t, model.current())
	assert.Equal(t, 2, model.current().TagNumber)
}

// TestModel_EscClearsFilterThenQuits verifies the two-step Esc behavior.
func TestModel_EscClearsFilterThenQuits(t *testing.T) {
	model := loadTestTags(New(nil, Options{}), testTags()...)
	model = typeText(model, "jo")
	require.Len(t, model.items, 2)

	model, cmd := updateModel(model, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Nil(t, cmd)
	assert.Len(t, model.items, 3)
	assert.Equal(t, StateBrowsing, model.state)

	model, cmd = updateModel(model, tea.KeyMsg{Type: tea.KeyEsc})
	assert.NotNil(t, cmd)
	assert.Equal(t, StateQuitting, model.state)
	assert.True(t, model.GetResult().Cancelled)
}

// TestModel_Navigation verifies Up/Down stay within bounds.
func TestModel_Navigation(t *testing.T) {
	model := loadTestTags(New(nil, Options{}), testTags()...)

	model, _ = updateModel(model, tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, 0, model.cursor)

	for range 5 {
		model, _ = updateModel(model, tea.KeyMsg{Type: tea.KeyDown})
	}
	assert.Equal(t, 2, model.cursor)
}

// TestModel_MarkToggle verifies Space toggles a mark on the current tag.
func TestModel_MarkToggle(t *testing.T) {
	model := loadTestTags(New(nil, Options{}), testTags()...)

	model, _ = updateModel(model, tea.KeyMsg{Type: tea.KeySpace})
	assert.True(t, model.marked[3])

	model, _ = updateModel(model, tea.KeyMsg{Type: tea.KeySpace})
	assert.Empty(t, model.marked)
}

// TestModel_MarkAllAndNone verifies Ctrl+A marks visible tags and Ctrl+N clears.
func TestModel_MarkAllAndNone(t *testing.T) {
	model := loadTestTags(New(nil, Options{}), testTags()...)
	model = typeText(model, "jo")

	model, _ = updateModel(model, tea.KeyMsg{Type: tea.KeyCtrlA})
	assert.Len(t, model.marked, 2)
	assert.False(t, model.marked[1])

	model, _ = updateModel(model, tea.KeyMsg{Type: tea.KeyCtrlN})
	assert.Empty(t, model.marked)
}

// TestModel_EnterSelectsCurrent verifies Enter with nothing marked selects the cursor tag.
func TestModel_EnterSelectsCurrent(t *testing.T) {
	model := loadTestTags(New(nil, Options{}), testTags()...)
	model, _ = updateModel(model, tea.KeyMsg{Type: tea.KeyDown})

	model, cmd := updateModel(model, tea.KeyMsg{Type: tea.KeyEnter})

	assert.NotNil(t, cmd)
	assert.Equal(t, StateSelected, model.state)
	res := model.GetResult()
	assert.False(t, res.Cancelled)
	require.Len(t, res.Selected, 1)
	assert.Equal(t, 2, res.Selected[0].TagNumber)
	assert.Contains(t, model.View(), "#2")
}

// TestModel_EnterReturnsMarkedAscending verifies marked tags come back in tag order.
func TestModel_EnterReturnsMarkedAscending(t *testing.T) {
	model := loadTestTags(New(nil, Options{}), testTags()...)
	model, _ = updateModel(model, tea.KeyMsg{Type: tea.KeyCtrlA})

	model, _ = updateModel(model, tea.KeyMsg{Type: tea.KeyEnter})

	res := model.GetResult()
	require.Len(t, res.Selected, 3)
	assert.Equal(t, 1, res.Selected[0].TagNumber)
	assert.Equal(t, 3, res.Selected[2].TagNumber)
}

// TestModel_EnterWithEmptyList verifies Enter does nothing when no tags are listed.
func TestModel_EnterWithEmptyList(t *testing.T) {
	model := New(nil, Options{})

	model, cmd := updateModel(model, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Nil(t, cmd)
	assert.Equal(t, StateBrowsing, model.state)
}

// TestModel_DetailView verifies Tab opens the detail view and Esc returns to the list.
func TestModel_DetailView(t *testing.T) {
	model := loadTestTags(New(nil, Options{}), testTags()...)
	model, _ = updateModel(model, tea.KeyMsg{Type: tea.KeyDown})

	model, _ = updateModel(model, tea.KeyMsg{Type: tea.KeyTab})
	require.Equal(t, StateDetail, model.state)
	view := model.View()
	assert.Contains(t, view, "#2 boise")
	assert.Contains(t, view, "Capitol")

	model, _ = updateModel(model, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, StateBrowsing, model.state)
}

// TestModel_CtrlCQuits verifies Ctrl+C quits from any state.
func TestModel_CtrlCQuits(t *testing.T) {
	model := loadTestTags(New(nil, Options{}), testTags()...)
	model, _ = updateModel(model, tea.KeyMsg{Type: tea.KeyTab})

	model, cmd := updateModel(model, tea.KeyMsg{Type: tea.KeyCtrlC})

	assert.NotNil(t, cmd)
	assert.Equal(t, StateQuitting, model.state)
	assert.Empty(t, model.View())
}

// TestModel_WindowSize verifies window size is tracked.
func TestModel_WindowSize(t *testing.T) {
	model := New(nil, Options{})
	model, _ = updateModel(model, tea.WindowSizeMsg{Width: 120, Height: 40})

	assert.Equal(t, 120, model.width)
	assert.Equal(t, 40, model.height)
}

// TestCalculateVisibleRange verifies scrolling keeps the cursor in view.
func TestCalculateVisibleRange(t *testing.T) {
	tags := make([]*backend.Tag, 25)
	for i := range tags {
		tags[i] = &backend.Tag{Game: "boise", TagNumber: i + 1}
	}

	tests := []struct {
		name      string
		cursor    int
		wantStart int
		wantEnd   int
	}{
		{"top", 0, 0, 10},
		{"middle", 12, 7, 17},
		{"bottom", 24, 15, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := loadTestTags(New(nil, Options{}), tags...)
			model.cursor = tt.cursor
			start, end := model.calculateVisibleRange()
			assert.Equal(t, tt.wantStart, start)
			assert.Equal(t, tt.wantEnd, end)
		})
	}

	model := loadTestTags(New(nil, Options{}), tags[:3]...)
	start, end := model.calculateVisibleRange()
	assert.Equal(t, 0, start)
	assert.Equal(t, 3, end)
}

// TestModel_ViewShowsScrollHints verifies the list shows more-above/below counts.
func TestModel_ViewShowsScrollHints(t *testing.T) {
	tags := make([]*backend.Tag, 15)
	for i := range tags {
		tags[i] = &backend.Tag{Game: "boise", TagNumber: i + 1, FoundPlayer: "p"}
	}
	model := loadTestTags(New(nil, Options{Game: "boise"}), tags...)

	view := model.View()
	assert.Contains(t, view, "BikeTag boise")
	assert.Contains(t, view, "5 more below")
	assert.Contains(t, view, "via biketag")
}
