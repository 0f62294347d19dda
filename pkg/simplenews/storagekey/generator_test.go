package storagekey

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestTimestampGenerator(t *testing.T) {
	gen := &TimestampGenerator{
		Now:    func() time.Time { return time.UnixMilli(1718000000000) },
		Random: func() int64 { return 42 },
	}

	tests := []struct {
		name     string
		fileName string
		expected string
	}{
		{name: "jpeg", fileName: "photo.JPG", expected: "1718000000000-42.jpg"},
		{name: "no extension", fileName: "photo", expected: "1718000000000-42"},
		{name: "nested path", fileName: "dir/holiday.webp", expected: "1718000000000-42.webp"},
		{name: "trailing dot", fileName: "photo.", expected: "1718000000000-42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, gen.Generate(tt.fileName))
		})
	}
}

func TestTimestampGenerator_Defaults(t *testing.T) {
	gen := NewTimestampGenerator()
	pattern := regexp.MustCompile(`^\d{13}-\d{1,9}\.png$`)

	a := gen.Generate("a.png")
	b := gen.Generate("b.png")
	assert.Regexp(t, pattern, a)
	assert.Regexp(t, pattern, b)
}

func TestShardedGenerator(t *testing.T) {
	id := uuid.MustParse("987fcdeb-51a2-43d1-9f12-345678901234")
	gen := NewShardedGenerator("images")
	gen.NewID = func() uuid.UUID { return id }

	tests := []struct {
		name     string
		fileName string
		expected string
	}{
		{
			name:     "without filename",
			expected: "images/98/7fcdeb51a243d19f12345678901234",
		},
		{
			name:     "with filename",
			fileName: "my photo.png",
			expected: "images/98/7fcdeb51a243d19f12345678901234_my_photo.png",
		},
		{
			name:     "strips directories",
			fileName: "../../etc/passwd",
			expected: "images/98/7fcdeb51a243d19f12345678901234_passwd",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, gen.Generate(tt.fileName))
		})
	}
}

func TestShardedGenerator_NoPrefixAndShardLength(t *testing.T) {
	gen := &ShardedGenerator{ShardLength: 3, NewID: uuid.New}
	key := gen.Generate("x.gif")

	parts := strings.Split(key, "/")
	assert.Len(t, parts, 2)
	assert.Len(t, parts[0], 3)
	assert.True(t, strings.HasSuffix(key, "_x.gif"))
}

func TestFuncGenerator(t *testing.T) {
	gen := FuncGenerator(func(fileName string) string { return "fixed/" + fileName })
	assert.Equal(t, "fixed/a.jpg", gen.Generate("a.jpg"))
}
