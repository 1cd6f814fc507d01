package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mwsrestaurants/restaurant-sync/internal/offline/links"
	"github.com/mwsrestaurants/restaurant-sync/internal/offline/schema"
	offlinesync "github.com/mwsrestaurants/restaurant-sync/internal/offline/sync"
	"github.com/mwsrestaurants/restaurant-sync/internal/ui"
)

var listCmd = &cobra.Command{
	Use:     "list",
	GroupID: "browse",
	Short:   "List restaurants",
	Long: `List restaurants, optionally filtered by cuisine and neighborhood.

The list comes from the server when it is reachable and from the local cache
otherwise. Use "all" (the default) to disable a filter.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cuisine, _ := cmd.Flags().GetString("cuisine")
		neighborhood, _ := cmd.Flags().GetString("neighborhood")

		ctx := cmd.Context()
		a := mustApp(ctx)
		defer a.Close()

		restaurants, err := a.coord.FetchRestaurantsByCuisineAndNeighborhood(ctx, cuisine, neighborhood)
		if err != nil {
			a.exitf("Error listing restaurants: %v", err)
		}

		printOfflineNotice(a)
		if len(restaurants) == 0 {
			fmt.Printf("%s No restaurants found\n", ui.RenderWarn("⚠"))
			return
		}
		fmt.Println(ui.Table([]string{"ID", "Name", "Cuisine", "Neighborhood", "Fav"}, restaurantRows(restaurants)))
	},
}

var showCmd = &cobra.Command{
	Use:     "show <id>",
	GroupID: "browse",
	Short:   "Show restaurant details",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseID(args[0])

		ctx := cmd.Context()
		a := mustApp(ctx)
		defer a.Close()

		r, err := a.coord.FetchRestaurantByID(ctx, id)
		if errors.Is(err, offlinesync.ErrNotFound) {
			printOfflineNotice(a)
			a.exitf("Error: restaurant %d not found", id)
		}
		if err != nil {
			a.exitf("Error fetching restaurant: %v", err)
		}

		printOfflineNotice(a)
		fmt.Print(formatRestaurant(*r))
	},
}

var neighborhoodsCmd = &cobra.Command{
	Use:     "neighborhoods",
	GroupID: "browse",
	Short:   "List distinct neighborhoods",
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runDistinct(cmd.Context(), (*offlinesync.Coordinator).FetchNeighborhoods)
	},
}

var cuisinesCmd = &cobra.Command{
	Use:     "cuisines",
	GroupID: "browse",
	Short:   "List distinct cuisines",
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runDistinct(cmd.Context(), (*offlinesync.Coordinator).FetchCuisines)
	},
}

var reviewsCmd = &cobra.Command{
	Use:     "reviews <id>",
	GroupID: "browse",
	Short:   "Show reviews for a restaurant",
	Long: `Show the reviews of a restaurant.

Cached reviews are read first while the server copy is merged into the cache
in the background. By default the command waits for that merge and prints the
merged result; --cached prints the cache immediately.

Reviews written offline and not yet delivered are marked as pending.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseID(args[0])
		cached, _ := cmd.Flags().GetBool("cached")

		ctx := cmd.Context()
		a := mustApp(ctx)
		defer a.Close()

		reviews, err := a.coord.FetchReviewsByRestaurantID(ctx, id)
		if err != nil {
			a.exitf("Error fetching reviews: %v", err)
		}
		if !cached {
			a.coord.Wait()
			if merged, err := a.cache.ReviewsByRestaurant(ctx, id); err == nil && a.cache.Available() {
				reviews = merged
			}
		}

		printOfflineNotice(a)
		if len(reviews) == 0 {
			fmt.Printf("%s No reviews for restaurant %d\n", ui.RenderWarn("⚠"), id)
			return
		}
		fmt.Print(formatReviews(reviews))
	},
}

func init() {
	listCmd.Flags().String("cuisine", offlinesync.FilterAll, "Only show this cuisine")
	listCmd.Flags().String("neighborhood", offlinesync.FilterAll, "Only show this neighborhood")
	reviewsCmd.Flags().Bool("cached", false, "Print cached reviews without waiting for the server")

	rootCmd.AddCommand(listCmd, showCmd, neighborhoodsCmd, cuisinesCmd, reviewsCmd)
}

func runDistinct(ctx context.Context, fetch func(*offlinesync.Coordinator, context.Context) ([]string, error)) {
	a := mustApp(ctx)
	defer a.Close()

	values, err := fetch(a.coord, ctx)
	if err != nil {
		a.exitf("Error: %v", err)
	}
	printOfflineNotice(a)
	for _, v := range values {
		fmt.Println(v)
	}
}

func printOfflineNotice(a *app) {
	if !a.coord.Online() {
		fmt.Printf("%s Server unreachable, showing cached data\n\n", ui.RenderWarn("⚠"))
	}
}

func restaurantRows(restaurants []schema.Restaurant) [][]string {
	rows := make([][]string, 0, len(restaurants))
	for _, r := range restaurants {
		fav := ""
		if r.IsFavorite {
			fav = "♥"
		}
		rows = append(rows, []string{
			strconv.FormatInt(r.ID, 10),
			r.Name,
			r.CuisineType,
			r.Neighborhood,
			fav,
		})
	}
	return rows
}

var weekdays = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// orderedHours lists operating hours Monday first; unknown keys follow in
// alphabetical order.
func orderedHours(hours map[string]string) [][2]string {
	out := make([][2]string, 0, len(hours))
	seen := make(map[string]bool, len(hours))
	for _, day := range weekdays {
		if h, ok := hours[day]; ok {
			out = append(out, [2]string{day, h})
			seen[day] = true
		}
	}
	var rest []string
	for day := range hours {
		if !seen[day] {
			rest = append(rest, day)
		}
	}
	sort.Strings(rest)
	for _, day := range rest {
		out = append(out, [2]string{day, hours[day]})
	}
	return out
}

func formatRestaurant(r schema.Restaurant) string {
	var b strings.Builder

	title := r.Name
	if r.IsFavorite {
		title += " " + ui.RenderFail("♥")
	}
	fmt.Fprintf(&b, "\n%s\n\n", ui.RenderBold(title))
	fmt.Fprintf(&b, "Cuisine:      %s\n", r.CuisineType)
	fmt.Fprintf(&b, "Neighborhood: %s\n", r.Neighborhood)
	if r.Address != "" {
		fmt.Fprintf(&b, "Address:      %s\n", r.Address)
	}
	fmt.Fprintf(&b, "Location:     %.6f, %.6f\n", r.LatLng.Lat, r.LatLng.Lng)
	fmt.Fprintf(&b, "Page:         %s\n", ui.RenderAccent(links.URLForRestaurant(r)))
	fmt.Fprintf(&b, "Photo:        %s\n", ui.RenderMuted(links.ImageURLForRestaurant(r)))

	if hours := orderedHours(r.OperatingHours); len(hours) > 0 {
		fmt.Fprintf(&b, "\n%s\n", ui.RenderBold("Hours"))
		for _, h := range hours {
			fmt.Fprintf(&b, "  %-10s %s\n", h[0], h[1])
		}
	}
	b.WriteString("\n")
	return b.String()
}

func formatReviews(reviews []schema.Review) string {
	var b strings.Builder
	for _, r := range reviews {
		header := fmt.Sprintf("%s  %s", ui.RenderBold(r.Name), ui.RenderAccent(ui.Stars(r.Rating)))
		if !r.CreatedAt.IsZero() {
			header += "  " + ui.RenderMuted(r.CreatedAt.Format("Jan 2, 2006"))
		}
		if !r.HasServerID() {
			header += "  " + ui.RenderWarn("(pending)")
		}
		fmt.Fprintf(&b, "\n%s\n", header)
		if r.Comments != "" {
			fmt.Fprintf(&b, "  %s\n", r.Comments)
		}
	}
	b.WriteString("\n")
	return b.String()
}
