package main

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"chatshare/pkg/share"
)

var adjectives = []string{
	"QUICK", "CALM", "BRAVE", "BRIGHT", "COOL",
	"EAGER", "GENTLE", "GRAND", "GREEN", "BLUE",
	"RED", "GOLD", "WARM", "WILD", "BOLD",
	"CLEAR", "DEEP", "FAST", "FRESH", "KIND",
	"LIGHT", "NEAT", "PROUD", "SHARP", "WISE",
}

var nouns = []string{
	"FROG", "TIGER", "RIVER", "CLOUD", "STONE",
	"LEAF", "BIRD", "WOLF", "BEAR", "HAWK",
	"LION", "EAGLE", "WHALE", "OTTER", "SHARK",
	"LAKE", "MOON", "STAR", "WAVE", "WIND",
	"PEAK", "DAWN", "MIST", "RAIN", "RIDGE",
}

var rng *rand.Rand

func init() {
	rng = rand.New(rand.NewSource(time.Now().UnixNano()))
}

// GenerateRoomCode creates a memorable room code in ADJECTIVE-NOUN-NN format
func GenerateRoomCode() string {
	adj := adjectives[rng.Intn(len(adjectives))]
	noun := nouns[rng.Intn(len(nouns))]
	num := rng.Intn(100)
	return fmt.Sprintf("%s-%s-%02d", adj, noun, num)
}

// NormalizeRoomCode ensures consistent formatting (uppercase, trimmed)
func NormalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidateRoomCode checks if a room code has valid format
func ValidateRoomCode(code string) bool {
	parts := strings.Split(code, "-")
	if len(parts) != 3 {
		return false
	}
	return len(parts[0]) > 0 && len(parts[1]) > 0 && len(parts[2]) > 0
}

// Well-known rooms every client starts with, so two participants can meet
// without exchanging a code first.
var defaultRoomCodes = []string{
	"GREEN-FROG-01",
	"BLUE-RIVER-02",
	"GOLD-HAWK-03",
}

// buildRooms assembles the switchable room list. An explicit room code is
// joined first; "new" mints a fresh code.
func buildRooms(roomFlag string) ([]share.Room, error) {
	var rooms []share.Room

	if roomFlag != "" {
		code := NormalizeRoomCode(roomFlag)
		if code == "NEW" {
			code = GenerateRoomCode()
		}
		if !ValidateRoomCode(code) {
			return nil, fmt.Errorf("invalid room code %q (want ADJECTIVE-NOUN-NN)", roomFlag)
		}
		rooms = append(rooms, share.Room{ID: code, Name: code})
	}

	for _, code := range defaultRoomCodes {
		if len(rooms) > 0 && rooms[0].ID == code {
			continue
		}
		rooms = append(rooms, share.Room{ID: code, Name: code})
	}
	return rooms, nil
}
