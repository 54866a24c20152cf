package identity

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// DiscordResolver looks users up through the Discord REST API. Results are
// cached for the process lifetime; people rarely rename mid-session and the
// leaderboard would otherwise hit the API once per row.
type DiscordResolver struct {
	session *discordgo.Session

	mu    sync.Mutex
	cache map[int64]UserInfo
}

func NewDiscordResolver(botToken string) (*DiscordResolver, error) {
	session, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	return &DiscordResolver{
		session: session,
		cache:   make(map[int64]UserInfo),
	}, nil
}

func (r *DiscordResolver) Resolve(ctx context.Context, userID int64) (UserInfo, error) {
	r.mu.Lock()
	info, ok := r.cache[userID]
	r.mu.Unlock()
	if ok {
		return info, nil
	}

	user, err := r.session.User(strconv.FormatInt(userID, 10), discordgo.WithContext(ctx))
	if err != nil {
		return UserInfo{}, fmt.Errorf("fetch discord user %d: %w", userID, err)
	}

	name := user.GlobalName
	if name == "" {
		name = user.Username
	}
	info = UserInfo{
		DisplayName: name,
		AvatarURL:   user.AvatarURL("64"),
	}

	r.mu.Lock()
	r.cache[userID] = info
	r.mu.Unlock()
	return info, nil
}
