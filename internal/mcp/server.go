package mcp

import (
	"log/slog"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/skumate/internal/cart"
	"github.com/hpungsan/skumate/internal/config"
	"github.com/hpungsan/skumate/internal/ops"
	"github.com/hpungsan/skumate/internal/workflow"
)

// Catalog is the backend the export and import tools use.
type Catalog interface {
	ops.Searcher
	ops.Adder
}

// Deps are the long-lived collaborators shared by every tool call.
type Deps struct {
	Config  *config.Config
	Engine  *workflow.Engine
	Cart    *cart.Store
	Catalog Catalog
	Logger  *slog.Logger
}

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"lookup_search": {
		def:     lookupSearchToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleLookupSearch },
	},
	"lookup_enrich": {
		def:     lookupEnrichToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleLookupEnrich },
	},
	"lookup_edit": {
		def:     lookupEditToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleLookupEdit },
	},
	"lookup_new": {
		def:     lookupNewToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleLookupNew },
	},
	"lookup_variant": {
		def:     lookupVariantToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleLookupVariant },
	},
	"lookup_set_fields": {
		def:     lookupSetFieldsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleLookupSetFields },
	},
	"lookup_smart_paste": {
		def:     lookupSmartPasteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleLookupSmartPaste },
	},
	"lookup_save": {
		def:     lookupSaveToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleLookupSave },
	},
	"lookup_cancel": {
		def:     lookupCancelToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleLookupCancel },
	},
	"lookup_state": {
		def:     lookupStateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleLookupState },
	},
	"cart_add": {
		def:     cartAddToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCartAdd },
	},
	"cart_add_result": {
		def:     cartAddResultToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCartAddResult },
	},
	"cart_remove": {
		def:     cartRemoveToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCartRemove },
	},
	"cart_clear": {
		def:     cartClearToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCartClear },
	},
	"cart_list": {
		def:     cartListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCartList },
	},
	"cart_export": {
		def:     cartExportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCartExport },
	},
	"catalog_export": {
		def:     catalogExportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCatalogExport },
	},
	"catalog_import": {
		def:     catalogImportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCatalogImport },
	},
}

// AllToolNames returns every tool name, sorted.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer creates an MCP server with the skumate tools registered.
// Tools listed in cfg.DisabledTools are excluded from registration.
func NewServer(deps Deps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"skumate",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(deps)

	disabled := make(map[string]bool)
	if deps.Config != nil {
		for _, name := range deps.Config.DisabledTools {
			disabled[name] = true
		}
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(deps Deps, version string) error {
	s := NewServer(deps, version)
	return server.ServeStdio(s)
}
