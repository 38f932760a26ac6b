package capture

import (
	"encoding/base64"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

func basicAuthValue(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}

// basicAuthHeader attaches an Authorization header to every request of the
// browser tab.
func basicAuthHeader(user, pass string) chromedp.Action {
	return chromedp.Tasks{
		network.Enable(),
		network.SetExtraHTTPHeaders(network.Headers{"Authorization": basicAuthValue(user, pass)}),
	}
}
