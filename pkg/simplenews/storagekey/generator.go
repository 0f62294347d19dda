package storagekey

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Generator derives a unique storage key from a client-supplied file name
type Generator interface {
	Generate(fileName string) string
}

// TimestampGenerator produces flat keys of the form
// {unix-millis}-{random}{ext}, e.g. 1718000000000-483920112.jpg
type TimestampGenerator struct {
	Now    func() time.Time
	Random func() int64
}

func NewTimestampGenerator() *TimestampGenerator {
	return &TimestampGenerator{
		Now:    time.Now,
		Random: func() int64 { return rand.Int63n(1_000_000_000) },
	}
}

func (g *TimestampGenerator) Generate(fileName string) string {
	return fmt.Sprintf("%d-%d%s", g.Now().UnixMilli(), g.Random(), Extension(fileName))
}

// ShardedGenerator spreads keys over directories git-style:
// {prefix}/ab/cd1234ef5678..._filename
type ShardedGenerator struct {
	Prefix string
	// ShardLength controls how many characters to use for sharding (default: 2)
	ShardLength int
	NewID       func() uuid.UUID
}

func NewShardedGenerator(prefix string) *ShardedGenerator {
	return &ShardedGenerator{
		Prefix:      prefix,
		ShardLength: 2,
		NewID:       uuid.New,
	}
}

func (g *ShardedGenerator) Generate(fileName string) string {
	id := strings.ReplaceAll(g.NewID().String(), "-", "")

	shard := g.ShardLength
	if shard <= 0 || shard > len(id) {
		shard = 2
	}

	name := id[shard:]
	if fileName != "" {
		name = fmt.Sprintf("%s_%s", name, sanitizeFilename(filepath.Base(fileName)))
	}

	if g.Prefix == "" {
		return fmt.Sprintf("%s/%s", id[:shard], name)
	}
	return fmt.Sprintf("%s/%s/%s", strings.Trim(g.Prefix, "/"), id[:shard], name)
}

// FuncGenerator adapts a plain function
type FuncGenerator func(fileName string) string

func (f FuncGenerator) Generate(fileName string) string {
	return f(fileName)
}

// Extension returns the lower-cased extension of fileName including the dot,
// or "" when it has none.
func Extension(fileName string) string {
	ext := filepath.Ext(fileName)
	if ext == "." {
		return ""
	}
	return strings.ToLower(sanitizeFilename(ext))
}

func sanitizeFilename(filename string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		" ", "_",
	)
	return replacer.Replace(filename)
}
