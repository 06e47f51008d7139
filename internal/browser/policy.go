package browser

import (
	"net/url"
	"strings"

	"github.com/xela07ax/a11y-auditor/internal/validator"
)

// ResourceType: тип ресурса в терминах CDP (Document, Script, Image, ...).
type ResourceType string

const (
	ResourceDocument   ResourceType = "Document"
	ResourceStylesheet ResourceType = "Stylesheet"
	ResourceImage      ResourceType = "Image"
	ResourceMedia      ResourceType = "Media"
	ResourceFont       ResourceType = "Font"
	ResourceScript     ResourceType = "Script"
	ResourceXHR        ResourceType = "XHR"
	ResourceFetch      ResourceType = "Fetch"
	ResourceOther      ResourceType = "Other"
)

// RequestPolicy решает, пропустить ли исходящий запрос страницы.
type RequestPolicy func(t ResourceType, rawURL string) bool

// DefaultPolicy пропускает всё, что нужно для контраста, семантики и рендеринга,
// и режет сетевые картинки и медиа. Inline (data:) изображения разрешены.
// Запросы любого типа (включая редиректы Document) на внутренние IP и localhost отклоняются.
func DefaultPolicy(t ResourceType, rawURL string) bool {
	if strings.HasPrefix(rawURL, "data:") {
		return true
	}
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" && validator.IsBlockedHost(u.Hostname()) {
		return false
	}
	switch t {
	case ResourceImage, ResourceMedia:
		return false
	}
	return true
}
