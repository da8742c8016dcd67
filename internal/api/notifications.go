package api

import (
	"context"
	"net/http"
)

type channelAuthPayload struct {
	SocketID    string `json:"socket_id"`
	ChannelName string `json:"channel_name"`
}

type channelAuthResponse struct {
	Auth string `json:"auth"`
}

// AuthorizeChannel signs a private notification channel subscription for the
// given socket. The relay calls this with the chat's current token on every
// attempt, so a refreshed session keeps the channel authorized.
func (c *Client) AuthorizeChannel(ctx context.Context, token, socketID, channel string) (string, error) {
	var resp channelAuthResponse
	err := c.do(ctx, http.MethodPost, "/notifications/auth", token, channelAuthPayload{SocketID: socketID, ChannelName: channel}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Auth, nil
}
