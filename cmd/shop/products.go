package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/Veraticus/shopcompare/internal/cli"
	"github.com/Veraticus/shopcompare/internal/common"
	"github.com/Veraticus/shopcompare/internal/model"
)

func productsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "products",
		Short: "Manage the product catalog",
		Long:  `Add, list, search and import the products that can be compared.`,
	}

	// Subcommands
	cmd.AddCommand(productsAddCmd())
	cmd.AddCommand(productsListCmd())
	cmd.AddCommand(productsShowCmd())
	cmd.AddCommand(productsSearchCmd())
	cmd.AddCommand(productsImportCmd())

	return cmd
}

func productsAddCmd() *cobra.Command {
	var p model.Product
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p.Name = args[0]

			env, err := openCatalog(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close()

			id, err := env.catalog.AddProduct(cmd.Context(), p)
			if err != nil {
				return err
			}
			cmd.Println(cli.FormatSuccess(fmt.Sprintf("Added %s (%s)", p.Name, id)))
			return nil
		},
	}

	cmd.Flags().StringVar(&p.ID, "id", "", "product id (generated when empty)")
	cmd.Flags().StringVar(&p.Brand, "brand", "", "brand name")
	cmd.Flags().StringVar(&p.Category, "category", "", "category the product is compared in")
	cmd.Flags().Float64Var(&p.Price, "price", 0, "price")
	cmd.Flags().StringVar(&p.NutritionGrade, "nutrition", "", "nutrition grade (a-e)")
	cmd.Flags().StringVar(&p.EcoGrade, "eco", "", "eco grade (a-plus, a-f, not-applicable)")
	cmd.Flags().StringVar(&p.ImageURL, "image", "", "image URL")
	_ = cmd.MarkFlagRequired("category")

	return cmd
}

func productsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List products, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			category, _ := cmd.Flags().GetString("category")

			env, err := openCatalog(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close()

			var products []model.Product
			if category != "" {
				products, err = env.catalog.Comparables(cmd.Context(), category)
			} else {
				products, err = env.catalog.Products(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}

			printProducts(cmd.OutOrStdout(), products)
			return nil
		},
	}

	cmd.Flags().Int("limit", 50, "maximum number of products (0 for all)")
	cmd.Flags().String("category", "", "only list one category")

	return cmd
}

func productsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openCatalog(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close()

			p, err := env.catalog.Product(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			summary, err := env.catalog.ReviewSummary(cmd.Context(), p.ID)
			if err != nil {
				return err
			}

			lines := []string{
				fmt.Sprintf("Brand:          %s", orDash(p.Brand)),
				fmt.Sprintf("Category:       %s", p.Category),
				fmt.Sprintf("Price:          %s", formatPrice(p)),
				fmt.Sprintf("Nutrition:      %s", orDash(p.NutritionGrade)),
				fmt.Sprintf("Eco grade:      %s", orDash(p.EcoGrade)),
				fmt.Sprintf("Reviews:        %d (avg %.1f)", summary.Count, summary.AverageRating),
			}
			cmd.Println(cli.RenderBox(p.Name, strings.Join(lines, "\n")))
			return nil
		},
	}
}

func productsSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <pattern>",
		Short: "Search products by name or brand",
		Long:  `Search product names and brands with a case-insensitive regular expression.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openCatalog(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close()

			products, err := env.catalog.Products(cmd.Context(), 0)
			if err != nil {
				return err
			}

			matches, err := searchProducts(products, args[0])
			if err != nil {
				return common.NewUserError(fmt.Sprintf("invalid pattern %q", args[0]), err)
			}
			slog.Debug("Searched products", "pattern", args[0], "matches", len(matches))
			printProducts(cmd.OutOrStdout(), matches)
			return nil
		},
	}
}

func productsImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.json>",
		Short: "Import products from a JSON file",
		Long: `Import a JSON array of products. Each entry carries id, name, brand,
category, price, nutritionGrade, ecoGrade and imageUrl; entries with an id
replace the stored product.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open import file: %w", err)
			}
			defer func() { _ = f.Close() }()

			products, err := parseImport(f)
			if err != nil {
				return err
			}

			env, err := openCatalog(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close()

			bar := progressbar.NewOptions(len(products),
				progressbar.OptionSetWriter(cmd.ErrOrStderr()),
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowCount(),
				progressbar.OptionSetWidth(40),
				progressbar.OptionSetDescription("[cyan][bold]Importing products...[reset]"),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() {
					_, _ = fmt.Fprintln(cmd.ErrOrStderr())
				}),
			)

			var failed int
			for _, p := range products {
				if _, err := env.catalog.AddProduct(cmd.Context(), p); err != nil {
					failed++
					common.LogWarn(err, "Skipping product", common.Fields{"name": p.Name, "id": p.ID})
				}
				_ = bar.Add(1)
			}

			imported := len(products) - failed
			cmd.Println(cli.FormatSuccess(fmt.Sprintf("Imported %d products", imported)))
			if failed > 0 {
				cmd.Println(cli.FormatWarning(fmt.Sprintf("%d products were skipped", failed)))
			}
			return nil
		},
	}
}

// importRecord is one entry of an import file.
type importRecord struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Brand          string  `json:"brand"`
	Category       string  `json:"category"`
	NutritionGrade string  `json:"nutritionGrade"`
	EcoGrade       string  `json:"ecoGrade"`
	ImageURL       string  `json:"imageUrl"`
	Price          float64 `json:"price"`
}

func parseImport(r io.Reader) ([]model.Product, error) {
	var records []importRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, common.NewUserError("the import file must be a JSON array of products", err)
	}

	products := make([]model.Product, 0, len(records))
	for _, rec := range records {
		products = append(products, model.Product{
			ID:             rec.ID,
			Name:           rec.Name,
			Brand:          rec.Brand,
			Category:       rec.Category,
			NutritionGrade: rec.NutritionGrade,
			EcoGrade:       rec.EcoGrade,
			ImageURL:       rec.ImageURL,
			Price:          rec.Price,
		})
	}
	return products, nil
}

func searchProducts(products []model.Product, pattern string) ([]model.Product, error) {
	re, err := common.CompileCaseInsensitive(pattern)
	if err != nil {
		return nil, err
	}
	var matches []model.Product
	for _, p := range products {
		if re.MatchString(p.Name + "\n" + p.Brand) {
			matches = append(matches, p)
		}
	}
	return matches, nil
}

func printProducts(w io.Writer, products []model.Product) {
	if len(products) == 0 {
		_, _ = fmt.Fprintln(w, cli.FormatInfo("No products found"))
		return
	}

	rows := make([][]string, 0, len(products))
	for _, p := range products {
		rows = append(rows, []string{p.ID, p.Name, orDash(p.Brand), p.Category, formatPrice(p)})
	}
	_, _ = fmt.Fprintln(w, cli.RenderTable([]string{"ID", "Name", "Brand", "Category", "Price"}, rows))
}

func formatPrice(p model.Product) string {
	if !p.HasPrice() {
		return "-"
	}
	return fmt.Sprintf("%.2f", p.Price)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
