package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleOPML = `<?xml version="1.0" encoding="UTF-8"?>
<opml version="2.0">
  <head><title>Subscriptions</title></head>
  <body>
    <outline text="Tech">
      <outline text="Night Shift Radio" type="rss" xmlUrl="https://example.com/feed1.xml"/>
      <outline text="Duplicate" type="rss" xmlUrl="https://example.com/feed1.xml"/>
    </outline>
    <outline text="Other Show" type="rss" xmlUrl="https://example.com/feed2.xml"/>
  </body>
</opml>`

func TestParseOPML(t *testing.T) {
	t.Parallel()

	urls, err := ParseOPML([]byte(sampleOPML))
	require.NoError(t, err)

	// Nested outlines are walked and duplicates collapsed.
	assert.Equal(t, []string{
		"https://example.com/feed1.xml",
		"https://example.com/feed2.xml",
	}, urls)
}

func TestParseOPML_Empty(t *testing.T) {
	t.Parallel()

	doc := `<opml version="2.0"><body><outline text="empty group"/></body></opml>`
	_, err := ParseOPML([]byte(doc))
	assert.Error(t, err)
}

func TestParseOPML_Invalid(t *testing.T) {
	t.Parallel()

	_, err := ParseOPML([]byte("not xml at all"))
	assert.Error(t, err)
}
