package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"nftstake/gateway/middleware"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

type client struct {
	endpoint    string
	token       string
	sender      string
	idempotency string
}

func clientFlags(fs *flag.FlagSet) *client {
	c := &client{}
	endpoint := os.Getenv("STAKING_URL")
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	fs.StringVar(&c.endpoint, "endpoint", endpoint, "stakingd base URL")
	fs.StringVar(&c.sender, "sender", "", "caller address for servers running without auth")
	fs.StringVar(&c.idempotency, "idempotency-key", "", "Idempotency-Key header for retries")
	c.token = strings.TrimSpace(os.Getenv(defaultTokenEnv))
	return c
}

func (c *client) do(method, path string, body interface{}, stdout io.Writer) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, strings.TrimRight(c.endpoint, "/")+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.sender != "" {
		req.Header.Set(middleware.SenderHeader, c.sender)
	}
	if c.idempotency != "" {
		req.Header.Set(middleware.IdempotencyHeader, c.idempotency)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if json.Indent(&pretty, payload, "", "  ") == nil {
		payload = pretty.Bytes()
	}
	fmt.Fprintln(stdout, strings.TrimSpace(string(payload)))
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	return nil
}

func runStake(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("stake", flag.ContinueOnError)
	fs.SetOutput(stderr)
	c := clientFlags(fs)
	item := fs.String("item", "", "item address")
	lock := fs.Uint("lock", 7, "lock period in days: 7, 14 or 30")
	value := fs.String("value", "50000000", "native value attached to the notification")
	queryID := fs.Uint64("query-id", 0, "query id")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *item == "" {
		return fail(stderr, errors.New("-item is required"))
	}
	body := map[string]interface{}{"item": *item, "lock": *lock, "value": *value, "queryId": *queryID}
	if err := c.do(http.MethodPost, "/v1/stakes", body, stdout); err != nil {
		return fail(stderr, err)
	}
	return 0
}

func runClaim(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("claim", flag.ContinueOnError)
	fs.SetOutput(stderr)
	c := clientFlags(fs)
	item := fs.String("item", "", "item address")
	fee := fs.String("fee", "100000000", "native fee attached to the claim")
	returnItem := fs.Bool("return", false, "release the item after settling")
	queryID := fs.Uint64("query-id", 0, "query id")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *item == "" {
		return fail(stderr, errors.New("-item is required"))
	}
	body := map[string]interface{}{"item": *item, "fee": *fee, "returnItem": *returnItem, "queryId": *queryID}
	if err := c.do(http.MethodPost, "/v1/claims", body, stdout); err != nil {
		return fail(stderr, err)
	}
	return 0
}

func runDeposit(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("deposit", flag.ContinueOnError)
	fs.SetOutput(stderr)
	c := clientFlags(fs)
	amount := fs.String("amount", "", "reward tokens to move into the reserve")
	queryID := fs.Uint64("query-id", 0, "query id")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *amount == "" {
		return fail(stderr, errors.New("-amount is required"))
	}
	if err := c.do(http.MethodPost, "/v1/reserve/deposits", map[string]interface{}{"amount": *amount, "queryId": *queryID}, stdout); err != nil {
		return fail(stderr, err)
	}
	return 0
}

func runSend(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	fs.SetOutput(stderr)
	c := clientFlags(fs)
	to := fs.String("to", "", "destination actor")
	body := fs.String("body", "", "hex message body from stakectl encode")
	value := fs.String("value", "", "native value attached")
	bounce := fs.Bool("bounce", true, "return value on failure")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *to == "" || *body == "" {
		return fail(stderr, errors.New("-to and -body are required"))
	}
	req := map[string]interface{}{"to": *to, "body": strings.TrimPrefix(*body, "0x"), "value": *value, "bounce": *bounce}
	if err := c.do(http.MethodPost, "/v1/messages", req, stdout); err != nil {
		return fail(stderr, err)
	}
	return 0
}

func runStatus(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(stderr)
	c := clientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if err := c.do(http.MethodGet, "/v1/master", nil, stdout); err != nil {
		return fail(stderr, err)
	}
	return 0
}

func runEstimate(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("estimate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	c := clientFlags(fs)
	item := fs.String("item", "", "item address")
	elapsed := fs.Duration("elapsed", 7*24*time.Hour, "projected staking time")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *item == "" {
		return fail(stderr, errors.New("-item is required"))
	}
	path := fmt.Sprintf("/v1/items/%s/estimate?elapsed=%d", url.PathEscape(*item), int64(elapsed.Seconds()))
	if err := c.do(http.MethodGet, path, nil, stdout); err != nil {
		return fail(stderr, err)
	}
	return 0
}

func runHelper(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("helper", flag.ContinueOnError)
	fs.SetOutput(stderr)
	c := clientFlags(fs)
	item := fs.String("item", "", "item address")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *item == "" {
		return fail(stderr, errors.New("-item is required"))
	}
	if err := c.do(http.MethodGet, "/v1/items/"+url.PathEscape(*item)+"/helper", nil, stdout); err != nil {
		return fail(stderr, err)
	}
	return 0
}
