package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	service "github.com/okian/tutormarket/internal/app"
	"github.com/okian/tutormarket/internal/domain/pricing"
)

// withService runs fn against a started service and stops it afterwards so
// queued suggestion logs reach the store before the process exits.
func withService(ctx context.Context, env *runtimeEnv, fn func(*service.Service) error) error {
	store, err := env.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	svc := env.newService(store)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	runErr := fn(svc)
	if err := svc.Stop(context.WithoutCancel(ctx)); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func newSuggestCommand(env *runtimeEnv) *cobra.Command {
	var (
		req         pricing.Request
		comparables bool
	)

	cmd := &cobra.Command{
		Use:   "suggest <profile-id>",
		Short: "Print a price suggestion for a profile as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withService(ctx, env, func(svc *service.Service) error {
				if comparables {
					cmp, err := svc.GetMarketComparables(ctx, args[0], req)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), cmp)
				}
				sug, err := svc.SuggestPrice(ctx, args[0], req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), sug)
			})
		},
	}

	f := cmd.Flags()
	f.IntVar(&req.TimePeriodMonths, "months", 0, "market window in months (default from config)")
	f.StringSliceVar(&req.GradeLevels, "grade", nil, "grade level filter, repeatable")
	f.StringSliceVar(&req.CourseIDs, "course", nil, "course id filter, repeatable")
	f.StringVar(&req.SessionFormat, "format", "", "session format filter (online, in-person)")
	f.BoolVar(&comparables, "comparables", false, "print the scored comparables instead of a suggestion")
	return cmd
}

func newRankCommand(env *runtimeEnv) *cobra.Command {
	var interests, hobbies []string

	cmd := &cobra.Command{
		Use:   "rank <profile-id> [profile-id...]",
		Short: "Print ranking scores as JSON; several ids are ordered best first",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withService(ctx, env, func(svc *service.Service) error {
				if len(args) == 1 {
					res, err := svc.Rank(ctx, args[0], interests, hobbies)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), res)
				}
				res, err := svc.RankCandidates(ctx, args, interests, hobbies)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}

	f := cmd.Flags()
	f.StringSliceVar(&interests, "interest", nil, "student interest, repeatable")
	f.StringSliceVar(&hobbies, "hobby", nil, "student hobby, repeatable")
	return cmd
}
