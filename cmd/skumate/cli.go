package main

import (
	"bufio"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/skumate/internal/csvexport"
	"github.com/hpungsan/skumate/internal/enrich"
	"github.com/hpungsan/skumate/internal/errors"
	"github.com/hpungsan/skumate/internal/mcp"
	"github.com/hpungsan/skumate/internal/ops"
	"github.com/hpungsan/skumate/internal/product"
	"github.com/hpungsan/skumate/internal/workflow"
)

// stdout receives command output; promptInput, when set, answers
// confirmation prompts instead of the terminal. Both are swapped by tests.
var (
	stdout      io.Writer = os.Stdout
	promptInput io.Reader
)

// newCLIApp creates the CLI application with all commands.
// svc may be nil when only help or version output is needed.
func newCLIApp(svc *services) *cli.App {
	app := &cli.App{
		Name:    "skumate",
		Usage:   "POS catalog assistant",
		Version: Version,
		Commands: []*cli.Command{
			searchCmd(svc),
			lookupCmd(svc),
			addCmd(svc),
			updateCmd(svc),
			enrichCmd(svc),
			variantSKUCmd(svc),
			cartCmd(svc),
			exportAllCmd(svc),
			importCmd(svc),
			serveCmd(svc),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// recordFlags are the per-field flags shared by add, update and cart add.
func recordFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "sku", Aliases: []string{"s"}, Usage: "Product SKU (barcode)"},
		&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Item name"},
		&cli.StringFlag{Name: "category", Aliases: []string{"c"}, Usage: "Category (manufacturer)"},
		&cli.StringFlag{Name: "brand", Aliases: []string{"b"}, Usage: "Brand name"},
		&cli.StringFlag{Name: "variant", Usage: "Variant or pack size"},
		&cli.StringFlag{Name: "price", Aliases: []string{"p"}, Usage: "Price (empty clears it)"},
	}
}

// patchFromFlags collects only the flags that were given.
func patchFromFlags(c *cli.Context) product.Patch {
	var p product.Patch
	set := func(name string) *string {
		if !c.IsSet(name) {
			return nil
		}
		v := c.String(name)
		return &v
	}
	p.SKU = set("sku")
	p.ItemName = set("name")
	p.Category = set("category")
	p.BrandName = set("brand")
	p.VariantName = set("variant")
	p.Price = set("price")
	return p
}

// recordFromFlags builds a new normalized record from the field flags.
func recordFromFlags(c *cli.Context) product.Record {
	r := product.Record{
		SKU:         c.String("sku"),
		ItemName:    c.String("name"),
		Category:    c.String("category"),
		BrandName:   c.String("brand"),
		VariantName: c.String("variant"),
	}
	if c.IsSet("price") {
		r.Price = product.PriceOf(c.String("price"))
	}
	return product.Normalize(r)
}

// searchCmd creates the search command.
func searchCmd(svc *services) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search the catalog by SKU or name (no query lists everything)",
		ArgsUsage: "[query]",
		Action: func(c *cli.Context) error {
			query := strings.Join(c.Args().Slice(), " ")
			if strings.TrimSpace(query) == "" {
				query = workflow.Wildcard
			}
			records, err := svc.catalog.Search(c.Context, query)
			if err != nil {
				return outputError(err)
			}
			if records == nil {
				records = []product.Record{}
			}
			return outputJSON(map[string]any{"results": records, "count": len(records)})
		},
	}
}

// lookupCmd runs the lookup workflow for one query and prints the settled state.
func lookupCmd(svc *services) *cli.Command {
	return &cli.Command{
		Name:      "lookup",
		Usage:     "Search, falling back to AI enrichment on a barcode miss",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "provider", Usage: "AI provider: gemini|chatgpt (default from config)"},
		},
		Action: func(c *cli.Context) error {
			query := strings.Join(c.Args().Slice(), " ")
			if strings.TrimSpace(query) == "" {
				return outputError(errors.NewInvalidRequest("query is required"))
			}

			engine := svc.engine
			if p := c.String("provider"); p != "" {
				engine = newEngine(svc.catalog, svc.enricher, svc.cfg, p, svc.logger)
			}

			state, err := engine.Dispatch(c.Context, workflow.Search{Query: query})
			if err != nil {
				return outputError(err)
			}
			if err := outputJSON(state); err != nil {
				return err
			}
			if state.Notice != nil && state.Notice.Level == workflow.NoticeError {
				return cli.Exit(fmt.Sprintf("[%s] %s", state.Notice.Code, state.Notice.Message), 1)
			}
			return nil
		},
	}
}

// addCmd creates the add command.
func addCmd(svc *services) *cli.Command {
	return &cli.Command{
		Name:  "add",
		Usage: "Add a product to the catalog",
		Flags: recordFlags(),
		Action: func(c *cli.Context) error {
			r := recordFromFlags(c)
			if err := product.Validate(r, false); err != nil {
				return outputError(err)
			}
			saved, err := svc.catalog.Add(c.Context, r)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(saved)
		},
	}
}

// updateCmd applies the given fields to an existing product. Fields not
// passed keep their catalog values.
func updateCmd(svc *services) *cli.Command {
	return &cli.Command{
		Name:  "update",
		Usage: "Update a product; only the given fields change",
		Flags: recordFlags(),
		Action: func(c *cli.Context) error {
			sku := product.NormalizeSKU(c.String("sku"))
			if sku == "" {
				return outputError(errors.NewValidation(product.KeySKU, "SKU is required"))
			}

			current, err := findExact(c, svc, sku)
			if err != nil {
				return outputError(err)
			}

			patch := patchFromFlags(c)
			patch.SKU = nil
			r := product.Normalize(patch.Apply(current))
			if err := product.Validate(r, false); err != nil {
				return outputError(err)
			}
			saved, err := svc.catalog.Update(c.Context, r)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(saved)
		},
	}
}

// findExact searches the catalog and returns the record whose SKU is sku.
func findExact(c *cli.Context, svc *services, sku string) (product.Record, error) {
	records, err := svc.catalog.Search(c.Context, sku)
	if err != nil {
		return product.Record{}, err
	}
	state := workflow.State{Results: records}
	r, ok := state.Find(sku)
	if !ok {
		return product.Record{}, errors.NewNotFound(sku)
	}
	return r, nil
}

// enrichCmd creates the enrich command.
func enrichCmd(svc *services) *cli.Command {
	return &cli.Command{
		Name:      "enrich",
		Usage:     "Ask an AI provider for a product's details",
		ArgsUsage: "<sku>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name-hint", Usage: "Item name typed so far"},
			&cli.StringFlag{Name: "provider", Usage: "AI provider: gemini|chatgpt (default from config)"},
		},
		Action: func(c *cli.Context) error {
			sku := product.NormalizeSKU(c.Args().First())
			if sku == "" {
				return outputError(errors.NewValidation(product.KeySKU, "SKU is required"))
			}
			r, err := svc.enricher.Enrich(c.Context, enrich.Request{
				SKU:      sku,
				NameHint: c.String("name-hint"),
				Provider: c.String("provider"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(r)
		},
	}
}

// variantSKUCmd allocates the next variant SKU. Without --existing the
// taken set comes from a catalog search for the SKU root.
func variantSKUCmd(svc *services) *cli.Command {
	return &cli.Command{
		Name:      "variant-sku",
		Usage:     "Print the next free pack-size variant SKU (root + A..Z)",
		ArgsUsage: "<sku>",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "existing", Aliases: []string{"e"}, Usage: "SKUs already taken (skips the catalog search)"},
		},
		Action: func(c *cli.Context) error {
			base := c.Args().First()
			existing := c.StringSlice("existing")
			if !c.IsSet("existing") {
				root := product.VariantRoot(base)
				if root == "" {
					return outputError(errors.NewValidation(product.KeySKU, "base SKU is required"))
				}
				records, err := svc.catalog.Search(c.Context, root)
				if err != nil {
					return outputError(err)
				}
				existing = product.SKUs(records)
			}
			next, err := product.NextVariantSKU(base, existing)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]string{"sku": next})
		},
	}
}

// cartOutput mirrors the MCP cart tools' result.
type cartOutput struct {
	Items   []product.Record `json:"items"`
	Count   int              `json:"count"`
	Changed bool             `json:"changed,omitempty"`
	Warning string           `json:"warning,omitempty"`
}

func cartResult(svc *services, changed bool, err error) error {
	out := cartOutput{Items: svc.cart.Items(), Count: svc.cart.Len(), Changed: changed}
	if out.Items == nil {
		out.Items = []product.Record{}
	}
	if err != nil {
		if !errors.Is(err, errors.ErrPersistence) {
			return outputError(err)
		}
		out.Warning = errors.MessageOf(err)
		svc.logger.Warn("cart not saved", "error", err)
	}
	return outputJSON(out)
}

// cartCmd groups the export cart subcommands.
func cartCmd(svc *services) *cli.Command {
	return &cli.Command{
		Name:  "cart",
		Usage: "Manage the export cart",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List staged products",
				Action: func(c *cli.Context) error {
					return cartResult(svc, false, nil)
				},
			},
			{
				Name:  "add",
				Usage: "Stage a product",
				Flags: recordFlags(),
				Action: func(c *cli.Context) error {
					_, err := svc.cart.Add(c.Context, recordFromFlags(c))
					return cartResult(svc, err == nil || errors.Is(err, errors.ErrPersistence), err)
				},
			},
			{
				Name:      "remove",
				Usage:     "Remove a staged product",
				ArgsUsage: "<sku>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Skip confirmation"},
				},
				Action: func(c *cli.Context) error {
					sku := product.NormalizeSKU(c.Args().First())
					if sku == "" {
						return outputError(errors.NewValidation(product.KeySKU, "SKU is required"))
					}
					if err := confirm(c, svc, fmt.Sprintf("Remove %s from the cart?", sku)); err != nil {
						return outputError(err)
					}
					removed, err := svc.cart.Remove(c.Context, sku)
					return cartResult(svc, removed, err)
				},
			},
			{
				Name:  "clear",
				Usage: "Empty the cart",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Skip confirmation"},
				},
				Action: func(c *cli.Context) error {
					if err := confirm(c, svc, fmt.Sprintf("Clear %d item(s) from the cart?", svc.cart.Len())); err != nil {
						return outputError(err)
					}
					err := svc.cart.Clear(c.Context)
					return cartResult(svc, true, err)
				},
			},
			{
				Name:  "export",
				Usage: "Write the cart as a point-of-sale CSV",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "path", Usage: "Target .csv path (default: exports dir)"},
					&cli.StringFlag{Name: "label", Usage: "Filename label", Value: ops.CartLabel},
					&cli.StringFlag{Name: "columns", Usage: "Column set: moka|catalog", Value: "moka"},
					&cli.BoolFlag{Name: "stdout", Usage: "Print the CSV instead of writing a file"},
				},
				Action: func(c *cli.Context) error {
					cols, err := csvexport.ColumnSet(c.String("columns"))
					if err != nil {
						return outputError(err)
					}
					if c.Bool("stdout") {
						if svc.cart.Len() == 0 {
							return outputError(errors.NewInvalidRequest("cart is empty"))
						}
						text, err := svc.cart.ToCSV(cols)
						if err != nil {
							return outputError(err)
						}
						_, err = io.WriteString(stdout, text)
						return err
					}
					out, err := ops.ExportCart(c.Context, svc.cfg, svc.cart, ops.ExportInput{
						Path:    c.String("path"),
						Label:   c.String("label"),
						Columns: cols,
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(out)
				},
			},
		},
	}
}

// exportAllCmd creates the export-all command.
func exportAllCmd(svc *services) *cli.Command {
	return &cli.Command{
		Name:  "export-all",
		Usage: "Export the whole catalog as CSV",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "label", Usage: "Filename label", Value: ops.CatalogLabel},
			&cli.StringFlag{Name: "path", Usage: "Target .csv path (default: exports dir)"},
			&cli.StringFlag{Name: "columns", Usage: "Column set: catalog|moka", Value: "catalog"},
		},
		Action: func(c *cli.Context) error {
			cols, err := csvexport.ColumnSet(c.String("columns"))
			if err != nil {
				return outputError(err)
			}
			out, err := ops.ExportAll(c.Context, svc.cfg, svc.catalog, ops.ExportInput{
				Path:    c.String("path"),
				Label:   c.String("label"),
				Columns: cols,
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(out)
		},
	}
}

// importCmd creates the import command.
func importCmd(svc *services) *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Add every row of a catalog CSV through the backend",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Required: true, Usage: "Source .csv path"},
		},
		Action: func(c *cli.Context) error {
			out, err := ops.Import(c.Context, svc.cfg, svc.catalog, ops.ImportInput{Path: c.String("path")})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(out)
		},
	}
}

// serveCmd runs the MCP server on stdio.
func serveCmd(svc *services) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the MCP server on stdio",
		Action: func(c *cli.Context) error {
			if err := mcp.Run(svc.mcpDeps(), Version); err != nil {
				return outputError(err)
			}
			return nil
		},
	}
}

// Helper functions

// confirm asks before a destructive cart change. --yes or a config with
// confirm_destructive=false skips the prompt; piped input cannot answer it.
func confirm(c *cli.Context, svc *services, prompt string) error {
	if c.Bool("yes") || !svc.cfg.ShouldConfirm() {
		return nil
	}
	in := promptInput
	if in == nil {
		if !isTerminal() {
			return errors.NewInvalidRequest("confirmation required: pass --yes")
		}
		in = os.Stdin
	}
	fmt.Fprintf(os.Stderr, "%s [y/N] ", prompt)
	answer, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return nil
	}
	return errors.NewCancelled("confirmation")
}

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var sErr *errors.SkuError
	if stderrors.As(err, &sErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", sErr.Code, sErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}
