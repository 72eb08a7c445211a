package document

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadText(t *testing.T) {
	doc := LoadText("door.txt", "The door controller\nmonitors the sensor.\n\n \n\nThe actuator   opens the door.\r\n\r\nLast.")
	assert.Equal(t, []string{
		"The door controller monitors the sensor.",
		"The actuator opens the door.",
		"Last.",
	}, doc.Paragraphs)
	assert.Equal(t, "door.txt", doc.Source)
}

func TestLoadHTML(t *testing.T) {
	html := `<html><head><title> Door  System </title><style>p{}</style></head>
<body>
  <nav><p>Home</p></nav>
  <h1>Overview</h1>
  <p>The door controller monitors the door sensor.</p>
  <ul><li><p>Nested paragraph</p></li><li>Plain item</li></ul>
  <script>var x = 1;</script>
</body></html>`
	doc, err := LoadHTML("door.html", strings.NewReader(html))
	require.NoError(t, err)

	assert.Equal(t, "Door System", doc.Title)
	assert.Equal(t, []string{
		"Overview",
		"The door controller monitors the door sensor.",
		"Nested paragraph",
		"Plain item",
	}, doc.Paragraphs)
}

func TestLoadHTML_BodyFallback(t *testing.T) {
	doc, err := LoadHTML("x.html", strings.NewReader(`<html><body><div>Only   text</div></body></html>`))
	require.NoError(t, err)
	assert.Equal(t, []string{"Only text"}, doc.Paragraphs)
}

func TestLoad_Detects(t *testing.T) {
	doc, err := Load("notes", []byte("<!DOCTYPE html><html><body><p>Hi</p></body></html>"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Hi"}, doc.Paragraphs)

	doc, err = Load("notes.txt", []byte("<p>kept as text</p>"))
	require.NoError(t, err)
	assert.Equal(t, []string{"<p>kept as text</p>"}, doc.Paragraphs)
}

func TestPassages_StableIDs(t *testing.T) {
	a := LoadText("door.txt", "one\n\ntwo").Passages()
	b := LoadText("door.txt", "one\n\ntwo").Passages()
	require.Len(t, a, 2)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a[0].ID, a[1].ID)

	other := LoadText("other.txt", "one").Passages()
	assert.NotEqual(t, a[0].ID, other[0].ID)
}
