package conversation

// Participant is one member of a conversation. Immutable after creation;
// identity is ID.
type Participant struct {
	ID          string
	DisplayName string
	AvatarRef   string
	IsSelf      bool
}

// Directory resolves sender ids to participants for one conversation.
type Directory struct {
	byID map[string]Participant
}

// NewDirectory builds a directory from the conversation's member list.
func NewDirectory(participants []Participant) *Directory {
	byID := make(map[string]Participant, len(participants))
	for _, p := range participants {
		byID[p.ID] = p
	}
	return &Directory{byID: byID}
}

// Resolve returns the participant for the id, or a placeholder when the
// sender is not a known member (a peer who joined after the directory was
// built, or a server-side system sender).
func (d *Directory) Resolve(id string) Participant {
	if p, ok := d.byID[id]; ok {
		return p
	}
	return Participant{ID: id, DisplayName: "Unknown"}
}

// Self returns the local user's entry, if the directory has one.
func (d *Directory) Self() (Participant, bool) {
	for _, p := range d.byID {
		if p.IsSelf {
			return p, true
		}
	}
	return Participant{}, false
}

// Names maps participant ids to display names, preserving order.
func (d *Directory) Names(ids []string) []string {
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = d.Resolve(id).DisplayName
	}
	return names
}
