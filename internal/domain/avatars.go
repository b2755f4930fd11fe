package domain

// Avatar is a festive animal assigned to a player on join.
type Avatar struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Emoji     string `json:"emoji"`
	Accessory string `json:"accessory"`
}

var avatars = []Avatar{
	{ID: "reindeer", Name: "Reindeer", Emoji: "🦌", Accessory: "Red nose"},
	{ID: "polar-bear", Name: "Polar Bear", Emoji: "🐻‍❄️", Accessory: "Santa hat"},
	{ID: "penguin", Name: "Penguin", Emoji: "🐧", Accessory: "Scarf"},
	{ID: "owl", Name: "Snowy Owl", Emoji: "🦉", Accessory: "Earmuffs"},
	{ID: "fox", Name: "Arctic Fox", Emoji: "🦊", Accessory: "Mittens"},
	{ID: "rabbit", Name: "Snow Bunny", Emoji: "🐰", Accessory: "Bow"},
	{ID: "cat", Name: "Cozy Cat", Emoji: "🐱", Accessory: "Sweater"},
	{ID: "dog", Name: "Jolly Pup", Emoji: "🐶", Accessory: "Antlers"},
	{ID: "mouse", Name: "Christmas Mouse", Emoji: "🐭", Accessory: "Cheese gift"},
	{ID: "hedgehog", Name: "Holly Hedgehog", Emoji: "🦔", Accessory: "Holly berries"},
	{ID: "seal", Name: "Festive Seal", Emoji: "🦭", Accessory: "Bell collar"},
	{ID: "otter", Name: "Merry Otter", Emoji: "🦦", Accessory: "Candy cane"},
	{ID: "squirrel", Name: "Nutty Squirrel", Emoji: "🐿️", Accessory: "Acorn ornament"},
	{ID: "sloth", Name: "Sleepy Sloth", Emoji: "🦥", Accessory: "Pajamas"},
	{ID: "koala", Name: "Cuddly Koala", Emoji: "🐨", Accessory: "Eucalyptus wreath"},
	{ID: "panda", Name: "Panda Claus", Emoji: "🐼", Accessory: "Santa beard"},
}

// Avatars returns a copy of the palette.
func Avatars() []Avatar {
	out := make([]Avatar, len(avatars))
	copy(out, avatars)
	return out
}

// AvatarByID looks up a palette entry.
func AvatarByID(id string) (Avatar, bool) {
	for _, a := range avatars {
		if a.ID == id {
			return a, true
		}
	}
	return Avatar{}, false
}

// PickAvatar chooses uniformly among palette entries not in used. When every
// entry is taken the whole palette is eligible, so joining never blocks on it.
// intn must return a value in [0, n).
func PickAvatar(used []string, intn func(n int) int) Avatar {
	taken := make(map[string]struct{}, len(used))
	for _, id := range used {
		taken[id] = struct{}{}
	}

	pool := make([]Avatar, 0, len(avatars))
	for _, a := range avatars {
		if _, ok := taken[a.ID]; !ok {
			pool = append(pool, a)
		}
	}
	if len(pool) == 0 {
		pool = avatars
	}
	return pool[intn(len(pool))]
}
