package gmail

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const redirectWait = 2 * time.Minute

// Scopes requested for triage: label changes, trash, drafts
var Scopes = []string{
	gmailv1.GmailModifyScope,
	gmailv1.GmailLabelsScope,
	gmailv1.GmailComposeScope,
}

// NewService builds an OAuth-backed Gmail service. A cached token at
// tokenPath is reused while valid; otherwise the browser consent flow runs
// and the new token is cached.
func NewService(ctx context.Context, credentialsPath, tokenPath string, prompt io.Writer, logger *zap.Logger) (*gmailv1.Service, error) {
	b, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials at %s: %w", credentialsPath, err)
	}
	cfg, err := google.ConfigFromJSON(b, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse oauth config: %w", err)
	}

	if tok, err := readToken(tokenPath); err == nil {
		svc, err := gmailv1.NewService(ctx, option.WithHTTPClient(cfg.Client(ctx, tok)))
		if err == nil {
			_, err = svc.Users.GetProfile("me").Context(ctx).Do()
		}
		if err == nil {
			return svc, nil
		}
		logger.Warn("Cached Gmail token rejected, re-authenticating", zap.Error(err))
		os.Remove(tokenPath)
	}

	tok, err := tokenFromWeb(ctx, cfg, prompt)
	if err != nil {
		return nil, err
	}
	if err := saveToken(tokenPath, tok); err != nil {
		return nil, fmt.Errorf("cache token: %w", err)
	}

	svc, err := gmailv1.NewService(ctx, option.WithHTTPClient(cfg.Client(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return svc, nil
}

func readToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var tok oauth2.Token
	if err := json.NewDecoder(f).Decode(&tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

func saveToken(path string, tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// tokenFromWeb captures the auth code on a loopback redirect, falling back
// to a pasted code or redirect URL when the redirect never arrives.
func tokenFromWeb(ctx context.Context, cfg *oauth2.Config, prompt io.Writer) (*oauth2.Token, error) {
	codeCh := make(chan string, 1)

	if ln, err := net.Listen("tcp", "127.0.0.1:0"); err == nil {
		cfg.RedirectURL = fmt.Sprintf("http://127.0.0.1:%d/", ln.Addr().(*net.TCPAddr).Port)

		mux := http.NewServeMux()
		srv := &http.Server{ReadHeaderTimeout: 5 * time.Second, Handler: mux}
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			code := r.URL.Query().Get("code")
			if code == "" {
				http.Error(w, "Missing 'code' parameter", http.StatusBadRequest)
				return
			}
			fmt.Fprintln(w, "Authentication complete. You can close this window.")
			select {
			case codeCh <- code:
			default:
			}
		})
		go func() { _ = srv.Serve(ln) }()
		defer srv.Shutdown(context.Background())

		fmt.Fprintln(prompt, "Authorize easemail by opening this URL:")
		fmt.Fprintln(prompt, cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce))
		fmt.Fprintf(prompt, "Waiting for redirect on %s\n", cfg.RedirectURL)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case code := <-codeCh:
			return exchange(ctx, cfg, code)
		case <-time.After(redirectWait):
			fmt.Fprintln(prompt, "Timed out waiting for the redirect.")
		}
	}

	cfg.RedirectURL = "urn:ietf:wg:oauth:2.0:oob"
	fmt.Fprintln(prompt, "Open this URL, then paste the code or the full redirect URL:")
	fmt.Fprintln(prompt, cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce))
	fmt.Fprint(prompt, "> ")

	sc := bufio.NewScanner(os.Stdin)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("read auth code: %w", err)
		}
		return nil, errors.New("empty authorization code")
	}
	code, err := codeFromInput(sc.Text())
	if err != nil {
		return nil, err
	}
	return exchange(ctx, cfg, code)
}

func exchange(ctx context.Context, cfg *oauth2.Config, code string) (*oauth2.Token, error) {
	tok, err := cfg.Exchange(ctx, strings.TrimSpace(code))
	if err != nil {
		return nil, fmt.Errorf("token exchange: %w", err)
	}
	return tok, nil
}

// codeFromInput accepts either a bare auth code or a pasted redirect URL
func codeFromInput(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", errors.New("empty authorization code")
	}
	if !strings.HasPrefix(input, "http://") && !strings.HasPrefix(input, "https://") {
		return input, nil
	}
	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("parse redirect URL: %w", err)
	}
	code := u.Query().Get("code")
	if code == "" {
		return "", errors.New("no 'code' parameter found in pasted URL")
	}
	return code, nil
}
