package core

// Room is a resolved chat room. CanonicalID is the directory's value and is
// the only id used after resolution; DisplayID is what the user typed.
type Room struct {
	CanonicalID string
	DisplayID   string
}

// Session identifies who is chatting where.
type Session struct {
	Room Room
	User string
}
