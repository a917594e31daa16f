package dom_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anxuanzi/bua-teacher/dom"
)

func intp(i int) *int { return &i }

func sampleSnapshot() *dom.Snapshot {
	return &dom.Snapshot{
		RootID: "4",
		Map: map[string]*dom.NodeRecord{
			"0": {Type: dom.TypeText, Text: "Save", IsVisible: true},
			"1": {
				Type: dom.TypeElement, TagName: "button", XPath: "html/body/button",
				Attributes: map[string]string{"id": "save"}, Children: []string{"0"},
				IsVisible: true, IsTopElement: true, IsInteractive: true, IsInViewport: true,
				HighlightIndex: intp(0),
			},
			"2": {Type: dom.TypeText, Text: "Intro", IsVisible: true},
			"3": {Type: dom.TypeElement, TagName: "p", XPath: "html/body/p", Children: []string{"2"}, IsVisible: true},
			"4": {Type: dom.TypeElement, TagName: "body", XPath: "html/body", Children: []string{"1", "3"}, IsVisible: true},
		},
	}
}

func TestConstructDomTree(t *testing.T) {
	root, m, err := dom.ConstructDomTree(sampleSnapshot())
	require.NoError(t, err)

	assert.Equal(t, "body", root.TagName)
	assert.Nil(t, root.Parent)
	require.Len(t, root.Children, 2)

	button := root.Children[0].(*dom.ElementNode)
	assert.Same(t, root, button.Parent)
	assert.Same(t, button, m[0])
	idx, ok := button.Index()
	assert.True(t, ok)
	assert.Zero(t, idx)

	text := button.Children[0].(*dom.TextNode)
	assert.Same(t, button, text.Parent)
	assert.True(t, text.HasParentWithHighlightIndex())
	assert.True(t, text.IsParentInViewport())
	assert.True(t, text.IsParentTopElement())

	p := root.Children[1].(*dom.ElementNode)
	assert.NotNil(t, p.Attributes)
	assert.False(t, p.Children[0].(*dom.TextNode).HasParentWithHighlightIndex())
}

func TestConstructDomTreeOwnsValues(t *testing.T) {
	snap := sampleSnapshot()
	snap.Map["1"].Hosts = []string{"html/body/iframe"}
	_, m, err := dom.ConstructDomTree(snap)
	require.NoError(t, err)

	el := m[0]
	el.Attributes["id"] = "changed"
	el.Attributes["extra"] = "1"
	el.Hosts[0] = "html/body/div"
	*el.HighlightIndex = 9

	r := snap.Map["1"]
	assert.Equal(t, map[string]string{"id": "save"}, r.Attributes)
	assert.Equal(t, []string{"html/body/iframe"}, r.Hosts)
	assert.Equal(t, 0, *r.HighlightIndex)
}

func TestConstructDomTreeMalformed(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *dom.Snapshot)
	}{
		{"missing child", func(s *dom.Snapshot) { s.Map["4"].Children = append(s.Map["4"].Children, "99") }},
		{"shared child", func(s *dom.Snapshot) { s.Map["3"].Children = append(s.Map["3"].Children, "0") }},
		{"missing root", func(s *dom.Snapshot) { s.RootID = "42" }},
		{"text root", func(s *dom.Snapshot) { s.RootID = "0" }},
		{"root with parent", func(s *dom.Snapshot) { s.RootID = "3" }},
		{"nil record", func(s *dom.Snapshot) { s.Map["5"] = nil }},
		{"duplicate index", func(s *dom.Snapshot) { s.Map["3"].HighlightIndex = intp(0) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := sampleSnapshot()
			tt.mutate(s)
			_, _, err := dom.ConstructDomTree(s)
			assert.ErrorIs(t, err, dom.ErrMalformedSnapshot)
		})
	}

	_, _, err := dom.ConstructDomTree(nil)
	assert.ErrorIs(t, err, dom.ErrMalformedSnapshot)
}

func TestSelectorMapIndices(t *testing.T) {
	m := dom.SelectorMap{3: {}, 0: {}, 7: {}}
	assert.Equal(t, []int{0, 3, 7}, m.Indices())
	assert.Empty(t, dom.SelectorMap{}.Indices())
}
