package storefront

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
	"go.uber.org/zap"

	"storefront-cart/internal/config"
	"storefront-cart/internal/domain"
)

const accessTokenHeader = "X-Shopify-Storefront-Access-Token"

// Client talks to the Storefront GraphQL API.
type Client struct {
	endpoint    string
	accessToken string
	linesFirst  int
	httpClient  *http.Client
	logger      *zap.Logger

	createDoc *document
	cartDoc   *document
	addDoc    *document
	removeDoc *document
	updateDoc *document
}

type Option func(*Client)

// WithEndpoint overrides the URL derived from the shop domain.
func WithEndpoint(url string) Option {
	return func(c *Client) { c.endpoint = url }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient builds a client and parses every document it will send, so a
// malformed document fails at startup instead of on the first request.
func NewClient(cfg config.StorefrontConfig, logger *zap.Logger, opts ...Option) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	linesFirst := cfg.LinesFirst
	if linesFirst <= 0 {
		linesFirst = 50
	}
	c := &Client{
		endpoint:    endpointFor(cfg.Domain, cfg.APIVersion),
		accessToken: cfg.AccessToken,
		linesFirst:  linesFirst,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger.Named("storefront"),
	}
	for _, opt := range opts {
		opt(c)
	}

	docs := []struct {
		target **document
		name   string
		text   string
	}{
		{&c.createDoc, "CartCreate", CartCreateMutation},
		{&c.cartDoc, "Cart", CartQuery},
		{&c.addDoc, "CartLinesAdd", CartLinesAddMutation},
		{&c.removeDoc, "CartLinesRemove", CartLinesRemoveMutation},
		{&c.updateDoc, "CartLinesUpdate", CartLinesUpdateMutation},
	}
	for _, d := range docs {
		parsed, err := parseDocument(d.name, d.text)
		if err != nil {
			return nil, err
		}
		*d.target = parsed
	}
	return c, nil
}

func endpointFor(domainName, version string) string {
	base := strings.TrimSuffix(strings.TrimSpace(domainName), "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}
	if version == "" {
		version = "2023-10"
	}
	return fmt.Sprintf("%s/api/%s/graphql.json", base, version)
}

// document is a parsed operation and the variables it declares.
type document struct {
	name      string
	kind      ast.Operation
	text      string
	variables map[string]bool
}

func parseDocument(name, text string) (*document, error) {
	doc, err := parser.ParseQuery(&ast.Source{Name: name, Input: text})
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	op := doc.Operations.ForName(name)
	if op == nil {
		return nil, fmt.Errorf("document %s: operation not found", name)
	}
	if doc.Fragments.ForName("CartFields") == nil {
		return nil, fmt.Errorf("document %s: CartFields fragment missing", name)
	}
	vars := make(map[string]bool, len(op.VariableDefinitions))
	for _, def := range op.VariableDefinitions {
		vars[def.Variable] = true
	}
	return &document{name: name, kind: op.Operation, text: text, variables: vars}, nil
}

func (d *document) bind(values map[string]interface{}) error {
	for key := range values {
		if !d.variables[key] {
			return fmt.Errorf("document %s does not declare $%s", d.name, key)
		}
	}
	return nil
}

type graphQLRequest struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName"`
	Variables     map[string]interface{} `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors,omitempty"`
}

type graphQLError struct {
	Message string        `json:"message"`
	Path    []interface{} `json:"path,omitempty"`
}

// execute posts doc with variables and decodes the data member into out.
// Every failure is reported as a gateway error.
func (c *Client) execute(ctx context.Context, doc *document, variables map[string]interface{}, out interface{}) error {
	if err := doc.bind(variables); err != nil {
		return domain.E(domain.KindGatewayError, doc.name, "", err)
	}
	body, err := json.Marshal(graphQLRequest{Query: doc.text, OperationName: doc.name, Variables: variables})
	if err != nil {
		return domain.E(domain.KindGatewayError, doc.name, "marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.E(domain.KindGatewayError, doc.name, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(accessTokenHeader, c.accessToken)

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.E(domain.KindGatewayError, doc.name, "timeout", err)
		}
		return domain.E(domain.KindGatewayError, doc.name, "", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.E(domain.KindGatewayError, doc.name, "read response", err)
	}
	c.logger.Debug("graphql call",
		zap.String("operation", doc.name),
		zap.String("kind", string(doc.kind)),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(started)),
	)

	if resp.StatusCode != http.StatusOK {
		return domain.E(domain.KindGatewayError, doc.name, fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(raw, 256)), nil)
	}

	var gql graphQLResponse
	if err := json.Unmarshal(raw, &gql); err != nil {
		return domain.E(domain.KindGatewayError, doc.name, "malformed response", err)
	}
	if len(gql.Errors) > 0 {
		msgs := make([]string, len(gql.Errors))
		for i, e := range gql.Errors {
			msgs[i] = e.Message
		}
		return domain.E(domain.KindGatewayError, doc.name, "graphql errors: "+strings.Join(msgs, "; "), nil)
	}
	if len(gql.Data) == 0 || string(gql.Data) == "null" {
		return domain.E(domain.KindGatewayError, doc.name, "response has no data", nil)
	}
	if err := json.Unmarshal(gql.Data, out); err != nil {
		return domain.E(domain.KindGatewayError, doc.name, "malformed data", err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
