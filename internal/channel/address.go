package channel

import (
	"fmt"
	"strings"

	"warelay/internal/domain"

	"go.mau.fi/whatsmeow/types"
)

// addressFromJID renders a JID in the relay's address form: user chats as
// "<number>@c.us", everything else (groups, lid, broadcast) as the raw JID.
func addressFromJID(jid types.JID) string {
	jid = jid.ToNonAD()
	if jid.Server == types.DefaultUserServer {
		return jid.User + domain.UserSuffix
	}
	return jid.String()
}

// jidFromAddress parses a relay address into a JID.
func jidFromAddress(addr string) (types.JID, error) {
	user := strings.TrimSuffix(addr, domain.UserSuffix)
	if strings.Contains(user, "@") {
		jid, err := types.ParseJID(user)
		if err != nil {
			return types.JID{}, fmt.Errorf("parse address %q: %w", addr, err)
		}
		return jid, nil
	}
	user = strings.TrimPrefix(strings.TrimSpace(user), "+")
	if user == "" {
		return types.JID{}, fmt.Errorf("empty address")
	}
	return types.NewJID(user, types.DefaultUserServer), nil
}
