package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mwsrestaurants/restaurant-sync/internal/offline/schema"
	offlinesync "github.com/mwsrestaurants/restaurant-sync/internal/offline/sync"
	"github.com/mwsrestaurants/restaurant-sync/internal/ui"
)

var favoriteCmd = &cobra.Command{
	Use:     "favorite <id>",
	GroupID: "write",
	Short:   "Mark a restaurant as favorite",
	Long: `Mark a restaurant as favorite, or clear the mark with --off.

The cache is updated first. If the server cannot be reached the change is
queued and delivered later.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseID(args[0])
		off, _ := cmd.Flags().GetBool("off")

		ctx := cmd.Context()
		a := mustApp(ctx)
		defer a.Close()

		delivery, err := a.coord.SetFavorite(ctx, id, !off)
		if errors.Is(err, offlinesync.ErrNotFound) {
			a.exitf("Error: restaurant %d is not cached; run 'restaurants list' first", id)
		}
		if err != nil {
			a.exitf("Error updating favorite: %v", err)
		}

		action := "Marked restaurant %d as favorite"
		if off {
			action = "Removed restaurant %d from favorites"
		}
		fmt.Printf("%s %s (%s)\n", deliveryMark(delivery), fmt.Sprintf(action, id), delivery)
	},
}

var reviewCmd = &cobra.Command{
	Use:     "review",
	GroupID: "write",
	Short:   "Write reviews",
}

var reviewAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a review",
	Long: `Add a review for a restaurant.

The review is saved to the cache immediately. If the server cannot be reached
it is queued and shows as pending until it is delivered.

Example:
  restaurants review add --restaurant 3 --name Ana --rating 5 --comments "Great dumplings"`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		restaurantID, _ := cmd.Flags().GetInt64("restaurant")
		name, _ := cmd.Flags().GetString("name")
		rating, _ := cmd.Flags().GetInt("rating")
		comments, _ := cmd.Flags().GetString("comments")

		review := schema.Review{
			RestaurantID: restaurantID,
			Name:         name,
			Rating:       rating,
			Comments:     comments,
		}
		if err := review.Validate(); err != nil {
			exitf("Error: %v", err)
		}

		ctx := cmd.Context()
		a := mustApp(ctx)
		defer a.Close()

		stored, delivery, err := a.coord.AddReview(ctx, review)
		if err != nil {
			a.exitf("Error adding review: %v", err)
		}

		fmt.Printf("%s Review by %s saved (%s)\n", deliveryMark(delivery), stored.Name, delivery)
		if stored.HasServerID() {
			fmt.Printf("   Server id: %d\n", stored.ServerIDValue())
		}
		if stored.LocalKey != 0 {
			fmt.Printf("   Local key: %d\n", stored.LocalKey)
		}
	},
}

func init() {
	favoriteCmd.Flags().Bool("off", false, "Clear the favorite mark")

	reviewAddCmd.Flags().Int64("restaurant", 0, "Restaurant id (required)")
	reviewAddCmd.Flags().String("name", "", "Reviewer name (required)")
	reviewAddCmd.Flags().Int("rating", 0, "Rating from 1 to 5 (required)")
	reviewAddCmd.Flags().String("comments", "", "Review text")
	for _, flag := range []string{"restaurant", "name", "rating"} {
		_ = reviewAddCmd.MarkFlagRequired(flag)
	}

	reviewCmd.AddCommand(reviewAddCmd)
	rootCmd.AddCommand(favoriteCmd, reviewCmd)
}

func deliveryMark(d offlinesync.Delivery) string {
	if d == offlinesync.DeliveryQueued {
		return ui.RenderWarn("⏳")
	}
	return ui.RenderPass("✓")
}
