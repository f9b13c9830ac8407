package google

import (
	"net/url"
)

type parsedAuthURL struct {
	redirect string
	state    string
}

func parseAuthURL(raw string) (parsedAuthURL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return parsedAuthURL{}, err
	}
	q := u.Query()
	return parsedAuthURL{redirect: q.Get("redirect_uri"), state: q.Get("state")}, nil
}
