// Package cookies loads Netscape-format cookie files into an http cookie jar.
package cookies

import (
	"bufio"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

// httpOnlyPrefix marks cookies exported by browsers with the HttpOnly flag.
const httpOnlyPrefix = "#HttpOnly_"

// ParseFile reads a Netscape cookies.txt file. Blank lines and comments are
// skipped, except the #HttpOnly_ form, which is a real cookie entry.
func ParseFile(path string) ([]*http.Cookie, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening cookies file: %w", err)
	}
	defer f.Close()

	var cookies []*http.Cookie
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" {
			continue
		}

		httpOnly := false
		if strings.HasPrefix(line, httpOnlyPrefix) {
			httpOnly = true
			line = strings.TrimPrefix(line, httpOnlyPrefix)
		} else if strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) != 7 {
			return nil, fmt.Errorf("cookies file line %d: expected 7 tab-separated fields, got %d", lineNo, len(fields))
		}

		domain := fields[0]
		path := fields[2]
		secure := strings.EqualFold(fields[3], "TRUE")
		name := fields[5]
		value := fields[6]

		ck := &http.Cookie{
			Name:     name,
			Value:    value,
			Domain:   strings.TrimPrefix(domain, "."),
			Path:     path,
			Secure:   secure,
			HttpOnly: httpOnly,
		}
		if exp, err := strconv.ParseInt(fields[4], 10, 64); err == nil && exp > 0 {
			ck.Expires = time.Unix(exp, 0)
		}
		cookies = append(cookies, ck)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading cookies file: %w", err)
	}
	return cookies, nil
}

// NewJar builds a cookie jar, optionally preloaded from a Netscape cookies
// file. An empty path yields an empty jar.
func NewJar(path string) (http.CookieJar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	if path == "" {
		return jar, nil
	}

	cookies, err := ParseFile(path)
	if err != nil {
		return nil, err
	}

	// Group by domain so each SetCookies call scopes correctly.
	byDomain := make(map[string][]*http.Cookie)
	for _, ck := range cookies {
		byDomain[ck.Domain] = append(byDomain[ck.Domain], ck)
	}
	for domain, group := range byDomain {
		u := &url.URL{Scheme: "https", Host: domain, Path: "/"}
		jar.SetCookies(u, group)
	}
	return jar, nil
}
