// Package main provides a CI-friendly HTTP smoke test for the Reel auth API.
//
// It validates:
//   - multipart registration with an avatar upload
//   - login -> access + refresh token issuance (body and cookies)
//   - authenticated /me fetch via bearer token
//   - refresh rotation (new pair issued, old refresh token rejected)
//   - logout -> refresh rejected afterwards
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"
)

type sessionBody struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type authBody struct {
	User struct {
		ID       string `json:"id"`
		Username string `json:"userName"`
	} `json:"user"`
	Session sessionBody `json:"session"`
}

func main() {
	var (
		baseURL = flag.String("url", "http://127.0.0.1:8080", "Server base URL")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-request timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	base := strings.TrimRight(*baseURL, "/")
	client := &http.Client{Timeout: *timeout}

	suffix := time.Now().UnixNano()
	username := fmt.Sprintf("smoke%d", suffix)
	email := fmt.Sprintf("smoke%d@example.com", suffix)
	const pw = "correct horse battery staple"

	// Step 1: register.
	status, body := doRegister(client, base, username, email, pw)
	if status != http.StatusCreated {
		fatalf("register: status=%d body=%s", status, body)
	}
	step(*verbose, "register ok (%s)", username)

	// Step 2: login.
	var login authBody
	status, body = doJSON(client, base+"/api/v1/users/login", "", map[string]string{
		"userName": username,
		"password": pw,
	})
	if status != http.StatusOK {
		fatalf("login: status=%d body=%s", status, body)
	}
	mustDecode(body, &login)
	if login.Session.AccessToken == "" || login.Session.RefreshToken == "" {
		fatalf("login: missing tokens in response")
	}
	step(*verbose, "login ok")

	// Step 3: /me with bearer token.
	status, body = doGet(client, base+"/api/v1/users/me", login.Session.AccessToken)
	if status != http.StatusOK {
		fatalf("me: status=%d body=%s", status, body)
	}
	step(*verbose, "me ok")

	// Step 4: refresh rotates the pair.
	var refreshed struct {
		Session sessionBody `json:"session"`
	}
	status, body = doJSON(client, base+"/api/v1/users/refresh", "", map[string]string{
		"refreshToken": login.Session.RefreshToken,
	})
	if status != http.StatusOK {
		fatalf("refresh: status=%d body=%s", status, body)
	}
	mustDecode(body, &refreshed)
	if refreshed.Session.RefreshToken == login.Session.RefreshToken {
		fatalf("refresh: token was not rotated")
	}
	step(*verbose, "refresh ok")

	// Step 5: the old refresh token must now be rejected.
	status, _ = doJSON(client, base+"/api/v1/users/refresh", "", map[string]string{
		"refreshToken": login.Session.RefreshToken,
	})
	if status != http.StatusUnauthorized {
		fatalf("stale refresh: status=%d want=401", status)
	}
	step(*verbose, "stale refresh rejected")

	// Step 6: logout, then refresh must fail.
	status, body = doJSON(client, base+"/api/v1/users/logout", refreshed.Session.AccessToken, nil)
	if status != http.StatusNoContent {
		fatalf("logout: status=%d body=%s", status, body)
	}
	status, _ = doJSON(client, base+"/api/v1/users/refresh", "", map[string]string{
		"refreshToken": refreshed.Session.RefreshToken,
	})
	if status != http.StatusUnauthorized {
		fatalf("refresh after logout: status=%d want=401", status)
	}
	step(*verbose, "logout ok")

	fmt.Println("auth smoke: PASS")
}

func doRegister(client *http.Client, base, username, email, pw string) (int, []byte) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("fullName", "Smoke Test")
	_ = mw.WriteField("userName", username)
	_ = mw.WriteField("email", email)
	_ = mw.WriteField("password", pw)

	fw, err := mw.CreateFormFile("avatar", "avatar.png")
	if err != nil {
		fatalf("register form: %v", err)
	}
	// Tiny placeholder payload; servers without object storage accept it too.
	_, _ = fw.Write([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'})
	_ = mw.Close()

	req, err := http.NewRequest(http.MethodPost, base+"/api/v1/users/register", &buf)
	if err != nil {
		fatalf("register request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	return doRequest(client, req)
}

func doJSON(client *http.Client, url, bearer string, payload any) (int, []byte) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(http.MethodPost, url, body)
	if err != nil {
		fatalf("request %s: %v", url, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	return doRequest(client, req)
}

func doGet(client *http.Client, url, bearer string) (int, []byte) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		fatalf("request %s: %v", url, err)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return doRequest(client, req)
}

func doRequest(client *http.Client, req *http.Request) (int, []byte) {
	resp, err := client.Do(req)
	if err != nil {
		fatalf("%s %s: %v", req.Method, req.URL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		fatalf("read body: %v", err)
	}
	return resp.StatusCode, raw
}

func mustDecode(raw []byte, dst any) {
	if err := json.Unmarshal(raw, dst); err != nil {
		fatalf("decode response: %v (body=%s)", err, raw)
	}
}

func step(verbose bool, format string, args ...any) {
	if verbose {
		fmt.Printf("  "+format+"\n", args...)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "auth smoke: FAIL: "+format+"\n", args...)
	os.Exit(1)
}
