package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/shopcompare/internal/catalog"
	"github.com/Veraticus/shopcompare/internal/cli"
	"github.com/Veraticus/shopcompare/internal/model"
)

func compareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare <product-id>",
		Short: "Score a product against its category",
		Long: `Score a product on price, quality, nutrition, sustainability and brand
against every product in its category, and show how well it matches your
preference weights.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, _ := cmd.Flags().GetString("user")

			env, err := openCatalog(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close()

			cmp, err := env.catalog.Compare(cmd.Context(), args[0], user)
			if err != nil {
				return err
			}
			cmd.Println(renderComparison(cmp))
			return nil
		},
	}
	cmd.Flags().String("user", "", "user whose preference weights to apply")
	return cmd
}

func renderComparison(cmp *catalog.Comparison) string {
	s := cmp.Scores
	lines := []string{
		cli.FormatMatch(cmp.Match),
		"",
		fmt.Sprintf("Price           %s", cli.ScoreBar(s.Price)),
		fmt.Sprintf("Quality         %s", cli.ScoreBar(s.Quality)),
		fmt.Sprintf("Nutrition       %s", cli.ScoreBar(s.Nutrition)),
		fmt.Sprintf("Sustainability  %s", cli.ScoreBar(s.Sustainability)),
		fmt.Sprintf("Brand           %s", cli.ScoreBar(s.Brand)),
		"",
	}

	if cmp.Stats.IsEmpty() {
		lines = append(lines, cli.SubtleStyle.Render("No prices in this category yet"))
	} else {
		lines = append(lines, cli.SubtleStyle.Render(fmt.Sprintf(
			"Category prices: min %.2f · q1 %.2f · median %.2f · q3 %.2f · max %.2f",
			cmp.Stats.Min, cmp.Stats.Q1, cmp.Stats.Median, cmp.Stats.Q3, cmp.Stats.Max)))
	}
	if cmp.Summary.HasReviews() {
		lines = append(lines, cli.SubtleStyle.Render(fmt.Sprintf(
			"%d reviews, average %.1f", cmp.Summary.Count, cmp.Summary.AverageRating)))
	}

	return cli.RenderBox(fmt.Sprintf("%s  %s", cmp.Product.Name, formatPrice(cmp.Product)), strings.Join(lines, "\n"))
}

func rankCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rank <category>",
		Short: "Rank a category by match",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, _ := cmd.Flags().GetString("user")
			top, _ := cmd.Flags().GetInt("top")

			env, err := openCatalog(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close()

			weights, err := env.catalog.Weights(cmd.Context(), user)
			if err != nil {
				return err
			}
			rankings, err := env.catalog.Rank(cmd.Context(), args[0], weights)
			if err != nil {
				return err
			}
			if top > 0 {
				rankings = rankings.TopN(top)
			}

			cmd.Println(renderRankings(rankings))
			return nil
		},
	}
	cmd.Flags().String("user", "", "user whose preference weights to apply")
	cmd.Flags().Int("top", 10, "show only the best N products (0 for all)")
	return cmd
}

func renderRankings(rankings model.ProductRankings) string {
	if len(rankings) == 0 {
		return cli.FormatInfo("No products in this category")
	}
	rows := make([][]string, 0, len(rankings))
	for i, r := range rankings {
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			r.Product.Name,
			orDash(r.Product.Brand),
			formatPrice(r.Product),
			fmt.Sprintf("%d%%", r.Match),
		})
	}
	return cli.RenderTable([]string{"#", "Product", "Brand", "Price", "Match"}, rows)
}

func brandCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "brand <product-id>",
		Short: "Show the aggregate scores of a product's brand",
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
			agg, err := env.catalog.BrandAggregate(cmd.Context(), p)
			if err != nil {
				return err
			}
			if agg == nil {
				cmd.Println(cli.FormatInfo(fmt.Sprintf("%s has no brand", p.Name)))
				return nil
			}

			lines := []string{
				fmt.Sprintf("Overall         %s", cli.ScoreBar(agg.OverallScore)),
				fmt.Sprintf("Price           %s", cli.ScoreBar(agg.Price)),
				fmt.Sprintf("Quality         %s", cli.ScoreBar(agg.Quality)),
				fmt.Sprintf("Nutrition       %s", cli.ScoreBar(agg.Nutrition)),
				fmt.Sprintf("Sustainability  %s", cli.ScoreBar(agg.Sustainability)),
				cli.SubtleStyle.Render(fmt.Sprintf("%d products", agg.ProductCount)),
			}
			cmd.Println(cli.RenderBox(p.Brand, strings.Join(lines, "\n")))
			return nil
		},
	}
}

func prefsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "View or change preference weights",
		Long: `Preference weights (1-5) say how much each category matters when
computing a match. Only their relative size matters.`,
	}
	cmd.AddCommand(prefsShowCmd())
	cmd.AddCommand(prefsSetCmd())
	return cmd
}

func prefsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <user>",
		Short: "Show a user's weights",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openCatalog(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close()

			w, err := env.catalog.Weights(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			cmd.Println(renderWeights(w))
			return nil
		},
	}
}

func prefsSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <user>",
		Short: "Change a user's weights",
		Long:  `Change a user's weights. Unset flags keep their current value.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openCatalog(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close()

			w, err := env.catalog.Weights(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := applyWeightFlags(cmd, &w); err != nil {
				return err
			}
			if err := env.catalog.SetWeights(cmd.Context(), args[0], w); err != nil {
				return err
			}
			cmd.Println(cli.FormatSuccess("Preferences saved"))
			cmd.Println(renderWeights(w))
			return nil
		},
	}

	cmd.Flags().Float64("price", 0, "price weight (1-5)")
	cmd.Flags().Float64("quality", 0, "quality weight (1-5)")
	cmd.Flags().Float64("nutrition", 0, "nutrition weight (1-5)")
	cmd.Flags().Float64("sustainability", 0, "sustainability weight (1-5)")
	cmd.Flags().Float64("brand", 0, "brand weight (1-5)")
	return cmd
}

func applyWeightFlags(cmd *cobra.Command, w *model.Weights) error {
	targets := map[string]*float64{
		"price":          &w.Price,
		"quality":        &w.Quality,
		"nutrition":      &w.Nutrition,
		"sustainability": &w.Sustainability,
		"brand":          &w.Brand,
	}
	for name, dst := range targets {
		if !cmd.Flags().Changed(name) {
			continue
		}
		v, err := cmd.Flags().GetFloat64(name)
		if err != nil {
			return err
		}
		*dst = v
	}
	return nil
}

func renderWeights(w model.Weights) string {
	return cli.RenderTable(
		[]string{"Price", "Quality", "Nutrition", "Sustainability", "Brand"},
		[][]string{{
			fmt.Sprintf("%.0f", w.Price),
			fmt.Sprintf("%.0f", w.Quality),
			fmt.Sprintf("%.0f", w.Nutrition),
			fmt.Sprintf("%.0f", w.Sustainability),
			fmt.Sprintf("%.0f", w.Brand),
		}},
	)
}
