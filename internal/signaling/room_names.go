package signaling

import (
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/rs/zerolog/log"
)

// Word pools for memorable room ids such as "amber-otter-ramen-lantern".
var (
	colours = []string{
		"amber", "azure", "coral", "crimson", "emerald", "golden", "indigo", "ivory", "jade", "lilac",
		"maroon", "ochre", "olive", "pearl", "plum", "ruby", "saffron", "sapphire", "scarlet", "silver",
	}
	moods = []string{
		"brave", "calm", "cheery", "cozy", "eager", "gentle", "jolly", "lucky", "merry", "mellow",
		"nimble", "plucky", "quiet", "sleepy", "sunny", "swift", "tidy", "witty", "zesty", "bouncy",
	}
	creatures = []string{
		"otter", "panda", "koala", "fox", "hedgehog", "narwhal", "penguin", "toucan", "heron", "lynx",
		"badger", "beaver", "falcon", "gecko", "ibis", "lemur", "marmot", "puffin", "walrus", "wombat",
	}
	dishes = []string{
		"ramen", "waffle", "sushi", "taco", "curry", "dumpling", "falafel", "gnocchi", "paella", "pierogi",
		"risotto", "samosa", "noodle", "biryani", "kebab", "fondue", "pancake", "poutine", "omelette", "dimsum",
	}
	things = []string{
		"lantern", "pebble", "comet", "orbit", "canyon", "meadow", "willow", "ember", "harbor", "beacon",
		"compass", "kettle", "ribbon", "anchor", "garden", "summit", "valley", "thimble", "marble", "rocket",
	}
)

// roomIDAttempts bounds the search for an unused id before a fifth word is
// appended.
const roomIDAttempts = 32

// SuggestRoomID returns a random four word room id for which inUse reports
// false.
func SuggestRoomID(inUse func(string) bool) string {
	pools := [][]string{colours, moods, creatures, dishes, things}

	for attempt := 0; ; attempt++ {
		words := make([]string, 0, 5)
		for _, i := range pickDistinct(len(pools), 4) {
			words = append(words, pick(pools[i]))
		}
		if attempt >= roomIDAttempts {
			words = append(words, pick(things))
		}

		id := strings.Join(words, "-")
		if inUse == nil || !inUse(id) {
			return id
		}
	}
}

// pickDistinct returns k distinct indexes below n in random order.
func pickDistinct(n, k int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j := randomIndex(i + 1)
		idx[i], idx[j] = idx[j], idx[i]
	}
	return idx[:k]
}

func pick(words []string) string {
	return words[randomIndex(len(words))]
}

func randomIndex(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		log.Panic().Err(err).Msg("failed to generate random index")
	}
	return int(n.Int64())
}
