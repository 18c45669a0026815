package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/platform-factory/backend/internal/api/apierror"
)

const textKey = "sanitized_text"

var (
	ErrTextRequired = errors.New("text is required and must be a string")
	ErrTextBlank    = errors.New("text must not be blank")
	ErrTextTooLong  = errors.New("text exceeds maximum length")
)

var (
	markupPattern = regexp.MustCompile(`<[a-zA-Z!/][^>]*>`)
	blockElements = "p, div, li, tr, h1, h2, h3, h4, h5, h6, blockquote, pre, section, article"
)

// htmlElements are the tags a rich-text paste can contain. Text with any other
// tag, such as List<Patient>, is not markup and is left as typed.
var htmlElements = map[string]struct{}{}

func init() {
	for _, tag := range strings.Fields(`a abbr address article aside b blockquote br caption code col colgroup
		dd del div dl dt em figcaption figure font footer h1 h2 h3 h4 h5 h6 header hr i img ins kbd
		li main mark meta link nav noscript ol p pre q s section small span strike strong style sub
		sup script table tbody td template tfoot th thead title tr u ul`) {
		htmlElements[tag] = struct{}{}
	}
}

type Config struct {
	MaxTextLength       int
	AllowedContentTypes []string
	// TextRoutes are path prefixes whose POST bodies carry requirement text.
	TextRoutes []string
	Logger     *zap.Logger
}

func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxTextLength == 0 {
		cfg.MaxTextLength = 10000
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/json"}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodPost || c.Method() == fiber.MethodPut {
			contentType := c.Get(fiber.HeaderContentType)
			if contentType != "" {
				allowed := false
				for _, allowedType := range cfg.AllowedContentTypes {
					if strings.Contains(contentType, allowedType) {
						allowed = true
						break
					}
				}
				if !allowed {
					return apierror.Respond(c, fiber.StatusUnsupportedMediaType, apierror.CodeUnsupportedMedia, "Unsupported content type")
				}
			}
		}

		if c.Method() != fiber.MethodPost || !hasPrefix(c.Path(), cfg.TextRoutes) {
			return c.Next()
		}

		var req map[string]interface{}
		if err := c.BodyParser(&req); err != nil {
			return apierror.BadRequest(c, "Invalid JSON format")
		}

		raw, ok := req["text"].(string)
		if !ok {
			return apierror.BadRequest(c, "Text is required and must be a string")
		}

		text, err := Clean(raw, cfg.MaxTextLength)
		if err != nil {
			cfg.Logger.Debug("Rejected requirement text",
				zap.String("ip", c.IP()),
				zap.String("path", c.Path()),
				zap.Int("runes", utf8.RuneCountInString(raw)),
				zap.Error(err),
			)
			return apierror.BadRequest(c, message(err))
		}

		c.Locals(textKey, text)
		return c.Next()
	}
}

// Clean reduces pasted markup to its text, strips NUL bytes and trims, then
// enforces non-blank and at most maxLen runes.
func Clean(raw string, maxLen int) (string, error) {
	text := strings.ReplaceAll(raw, "\x00", "")
	if markupPattern.MatchString(text) {
		text = stripMarkup(text)
	}
	text = strings.TrimSpace(text)

	if text == "" {
		return "", ErrTextBlank
	}
	if n := utf8.RuneCountInString(text); maxLen > 0 && n > maxLen {
		return "", fmt.Errorf("%w: %d > %d", ErrTextTooLong, n, maxLen)
	}
	return text, nil
}

// Text returns the cleaned requirement text stored by Middleware.
func Text(c *fiber.Ctx) (string, bool) {
	text, ok := c.Locals(textKey).(string)
	return text, ok
}

func stripMarkup(input string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(input))
	if err != nil || !isMarkup(doc) {
		return input
	}

	doc.Find("script, style, noscript, template").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find(blockElements).AppendHtml("\n")

	lines := strings.Split(doc.Text(), "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

// isMarkup reports whether the parsed text holds at least one element and
// only known HTML elements besides the implied html, head and body.
func isMarkup(doc *goquery.Document) bool {
	elements := 0
	known := true
	doc.Find("*").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		switch name := goquery.NodeName(s); name {
		case "html", "head", "body":
			return true
		default:
			elements++
			_, known = htmlElements[name]
			return known
		}
	})
	return elements > 0 && known
}

func message(err error) string {
	switch {
	case errors.Is(err, ErrTextBlank):
		return "Text must not be blank"
	case errors.Is(err, ErrTextTooLong):
		return "Text exceeds maximum length"
	default:
		return "Invalid text"
	}
}

func hasPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
