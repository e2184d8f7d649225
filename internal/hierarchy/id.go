// Package hierarchy derives and parses the friendly IDs that name boards,
// lists and cards within one cache generation.
//
// A board ID is a small integer ("3"), a list ID appends the list's index to
// its board ID ("3-1") and a card ID appends the card's index to its list ID
// ("3-1-2"). The depth of an ID is the number of '-' separators.
package hierarchy

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Separator joins the components of a friendly ID.
const Separator = "-"

// Level is one of board, list or card.
type Level int

const (
	LevelBoard Level = iota
	LevelList
	LevelCard
)

// Levels lists every level from the top of the hierarchy down.
var Levels = []Level{LevelBoard, LevelList, LevelCard}

func (l Level) String() string {
	switch l {
	case LevelBoard:
		return "board"
	case LevelList:
		return "list"
	case LevelCard:
		return "card"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// Plural returns the API collection name for the level ("boards", "lists", "cards").
func (l Level) Plural() string {
	return l.String() + "s"
}

// DepthOf counts the separators in id: 0 for a board, 1 for a list, 2 for a card.
// The shape of id is not checked.
func DepthOf(id string) int {
	return strings.Count(id, Separator)
}

// MintChild returns "<parent>-<index>". index is the 0-based position of the
// child in the server's response for the refresh that produced it.
func MintChild(parent string, index int) string {
	return parent + Separator + strconv.Itoa(index)
}

// ParentBoard returns id up to its first separator, or id itself if it has none.
func ParentBoard(id string) string {
	if i := strings.Index(id, Separator); i >= 0 {
		return id[:i]
	}
	return id
}

// ParentList returns id up to its second separator, or id itself if it has fewer.
func ParentList(id string) string {
	first := strings.Index(id, Separator)
	if first < 0 {
		return id
	}
	second := strings.Index(id[first+1:], Separator)
	if second < 0 {
		return id
	}
	return id[:first+1+second]
}

var (
	boardPattern = regexp.MustCompile(`^[0-9]+$`)
	listPattern  = regexp.MustCompile(`^[0-9]+-[0-9]+$`)
	cardPattern  = regexp.MustCompile(`^[0-9]+-[0-9]+-[0-9]+$`)
)

// ID is a parsed friendly ID that knows its level.
type ID struct {
	level Level
	raw   string
}

// Board returns the ID of board b.
func Board(b string) ID {
	return ID{level: LevelBoard, raw: b}
}

// Parse classifies s as a board, list or card ID. Only the shape is checked;
// whether the ID exists in the cache is the caller's concern.
func Parse(s string) (ID, error) {
	switch {
	case boardPattern.MatchString(s):
		return ID{level: LevelBoard, raw: s}, nil
	case listPattern.MatchString(s):
		return ID{level: LevelList, raw: s}, nil
	case cardPattern.MatchString(s):
		return ID{level: LevelCard, raw: s}, nil
	}
	return ID{}, fmt.Errorf("invalid ID %q", s)
}

// MustParse is Parse for IDs known to be well formed. It panics otherwise.
func MustParse(s string) ID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// Level returns the level the ID denotes.
func (id ID) Level() Level {
	return id.level
}

// String returns the friendly ID as typed by the operator.
func (id ID) String() string {
	return id.raw
}

// IsZero reports whether id is the zero value.
func (id ID) IsZero() bool {
	return id.raw == ""
}

// Child mints the ID of the index-th child of id.
func (id ID) Child(index int) ID {
	return ID{level: id.level + 1, raw: MintChild(id.raw, index)}
}

// BoardID returns the board that contains id (id itself for a board).
func (id ID) BoardID() ID {
	return ID{level: LevelBoard, raw: ParentBoard(id.raw)}
}

// ListID returns the list that contains a card ID (id itself for a list).
// It must not be called on a board ID.
func (id ID) ListID() ID {
	return ID{level: LevelList, raw: ParentList(id.raw)}
}

// Parent returns the ID one level up. A board has no parent.
func (id ID) Parent() (ID, bool) {
	switch id.level {
	case LevelList:
		return id.BoardID(), true
	case LevelCard:
		return id.ListID(), true
	}
	return ID{}, false
}
