package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"journeycal/internal/grid"
	"journeycal/internal/ics"
	appLog "journeycal/internal/log"
	"journeycal/internal/model"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func weatherText(w *model.Weather) string {
	if w == nil {
		return "-"
	}
	return fmt.Sprintf("%s %d°/%d°", w.Type, w.TemperatureMax, w.TemperatureMin)
}

func printEvents(w io.Writer, events []model.CalendarEvent) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tTIME\tTITLE\tCITY\tCALENDAR\tWEATHER")
	for _, ev := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", ev.ID, ev.Date, ev.Time, ev.Title, ev.City, ev.Calendar, weatherText(ev.Weather))
	}
	return tw.Flush()
}

func newGridCmd() *cobra.Command {
	var (
		date       string
		mode       string
		noWeekends bool
		next, prev int
	)
	cmd := &cobra.Command{
		Use:   "grid",
		Short: "Print the month or week grid with visible events",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			loc := a.cfg.Location()
			now := time.Now().In(loc)
			v := grid.NewViewState(now)
			v.WeekStart = a.cfg.WeekStartDay()
			v.ShowWeekends = a.cfg.ShowWeekends && !noWeekends
			if date != "" {
				d, err := grid.ParseDate(date, loc)
				if err != nil {
					return fmt.Errorf("--date: %w", err)
				}
				v.Current = d
			}
			if !v.SetViewMode(model.ViewMode(mode)) {
				return fmt.Errorf("--mode: unknown view mode %q", mode)
			}
			for range next {
				v.Next()
			}
			for range prev {
				v.Previous()
			}
			return renderGrid(cmd.OutOrStdout(), v, now, a.events.VisibleByDate, a.calendars.VisibleIDs())
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Reference date (YYYY-MM-DD), default today")
	cmd.Flags().StringVar(&mode, "mode", string(model.ViewMonth), "View mode: month or week")
	cmd.Flags().BoolVar(&noWeekends, "no-weekends", false, "Hide Saturdays and Sundays")
	cmd.Flags().IntVar(&next, "next", 0, "Move forward N months or weeks")
	cmd.Flags().IntVar(&prev, "prev", 0, "Move back N months or weeks")
	return cmd
}

// renderGrid writes the grid as text: one row per week, today marked with
// '*', days outside the month dimmed to '.', and the event count per day.
// The visible events follow the grid.
func renderGrid(w io.Writer, v *grid.ViewState, now time.Time, byDate func(string, []string) []model.CalendarEvent, visible []string) error {
	days := v.Days()
	cols := 7
	if !v.ShowWeekends {
		cols = 5
	}

	fmt.Fprintln(w, v.Title())
	for i := 0; i < cols && i < len(days); i++ {
		fmt.Fprintf(w, "%-7s", days[i].Format("Mon"))
	}
	fmt.Fprintln(w)

	var listed []model.CalendarEvent
	for i, d := range days {
		events := byDate(grid.FormatDate(d), visible)
		listed = append(listed, events...)

		mark := " "
		if grid.IsToday(d, now) {
			mark = "*"
		}
		count := ""
		if len(events) > 0 {
			count = fmt.Sprintf("+%d", len(events))
		}
		cell := fmt.Sprintf("%2d%s%s", d.Day(), mark, count)
		if !v.InCurrentMonth(d) {
			cell = " ."
		}
		fmt.Fprintf(w, "%-7s", cell)
		if (i+1)%cols == 0 {
			fmt.Fprintln(w)
		}
	}

	if len(listed) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	for _, ev := range listed {
		fmt.Fprintf(w, "%s %s  %s (%s) %s\n", ev.Date, ev.Time, ev.Title, ev.City, weatherText(ev.Weather))
	}
	return nil
}

func newEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List and edit events",
	}
	cmd.AddCommand(newEventsListCmd(), newEventsAddCmd(), newEventsUpdateCmd(), newEventsDeleteCmd(), newEventsClearCmd())
	return cmd
}

func newEventsListCmd() *cobra.Command {
	var date, from, to string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List events, optionally for one date or a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			var events []model.CalendarEvent
			switch {
			case date != "":
				events = a.events.ByDate(date)
			case from != "" || to != "":
				if to == "" {
					to = "9999-12-31"
				}
				events = a.events.InRange(from, to)
			default:
				events = a.events.All()
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), events)
			}
			return printEvents(cmd.OutOrStdout(), events)
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Only events on this date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&from, "from", "", "Range start (inclusive)")
	cmd.Flags().StringVar(&to, "to", "", "Range end (inclusive)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newEventsAddCmd() *cobra.Command {
	var in model.CreateEventInput
	var color string
	var lookup bool
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create an event",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			in.Color = model.Color(color)
			if lookup {
				wx := newWeatherClient(a, nil)
				cities, err := wx.SearchCities(cmd.Context(), in.City)
				switch {
				case err != nil:
					appLog.Warn("city lookup failed", "city", in.City, "err", err.Error())
				case len(cities) == 0:
					appLog.Warn("city not found", "city", in.City)
				default:
					loc := cities[0].Location()
					in.CityLocation = &loc
					if w, err := wx.ForecastFor(cmd.Context(), loc, in.Date); err != nil {
						appLog.Warn("forecast failed", "city", in.City, "err", err.Error())
					} else {
						in.Weather = w
					}
				}
			}

			ev, err := a.events.Create(cmd.Context(), in)
			if err != nil {
				return err
			}
			return printEvents(cmd.OutOrStdout(), []model.CalendarEvent{ev})
		},
	}
	cmd.Flags().StringVar(&in.Title, "title", "", "Title (max 30 characters)")
	cmd.Flags().StringVar(&in.Date, "date", "", "Date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&in.Time, "time", "", "Time (HH:MM)")
	cmd.Flags().StringVar(&in.City, "city", "", "City name")
	cmd.Flags().StringVar(&in.Calendar, "calendar", "personal", "Calendar id")
	cmd.Flags().StringVar(&color, "color", string(model.ColorBlue), "Color tag")
	cmd.Flags().BoolVar(&lookup, "lookup", false, "Geocode the city and attach a forecast")
	return cmd
}

func newEventsUpdateCmd() *cobra.Command {
	var title, date, clock, city, calendar, color string
	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Change fields of an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			in := model.UpdateEventInput{ID: args[0]}
			flags := cmd.Flags()
			if flags.Changed("title") {
				in.Title = &title
			}
			if flags.Changed("date") {
				in.Date = &date
			}
			if flags.Changed("time") {
				in.Time = &clock
			}
			if flags.Changed("city") {
				in.City = &city
			}
			if flags.Changed("calendar") {
				in.Calendar = &calendar
			}
			if flags.Changed("color") {
				c := model.Color(color)
				in.Color = &c
			}

			ev, found, err := a.events.Update(cmd.Context(), in)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("event %s not found", args[0])
			}
			return printEvents(cmd.OutOrStdout(), []model.CalendarEvent{ev})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "New title")
	cmd.Flags().StringVar(&date, "date", "", "New date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&clock, "time", "", "New time (HH:MM)")
	cmd.Flags().StringVar(&city, "city", "", "New city")
	cmd.Flags().StringVar(&calendar, "calendar", "", "New calendar id")
	cmd.Flags().StringVar(&color, "color", "", "New color tag")
	return cmd
}

func newEventsDeleteCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "delete [ID]",
		Short: "Delete one event by id, or every event on --date",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 0) == (date == "") {
				return errors.New("give either an event id or --date")
			}
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			if date != "" {
				n, err := a.events.DeleteByDate(cmd.Context(), date)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d event(s)\n", n)
				return nil
			}
			removed, err := a.events.DeleteByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("event %s not found", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), "removed 1 event(s)")
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Delete every event on this date (YYYY-MM-DD)")
	return cmd
}

func newEventsClearCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every event",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to clear without --yes")
			}
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()
			return a.events.ClearAll(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm deleting every event")
	return cmd
}

func newCalendarsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calendars",
		Short: "List calendars or toggle their visibility",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tCOLOR\tVISIBLE")
			for _, c := range a.calendars.All() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", c.ID, c.Name, c.Color, c.Visible)
			}
			return tw.Flush()
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "toggle ID",
		Short: "Flip the visibility of a calendar",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			ok, err := a.calendars.ToggleVisibility(cmd.Context(), args[0])
			if !ok {
				return fmt.Errorf("calendar %s not found", args[0])
			}
			if err != nil {
				return err
			}
			c, _ := a.calendars.Get(args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "%s visible=%t\n", c.ID, c.Visible)
			return nil
		},
	})
	return cmd
}

func newCitiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cities QUERY",
		Short: "Search cities by name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			wx := newWeatherClient(&app{cfg: cfg}, nil)
			cities, err := wx.SearchCities(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tLAT\tLON\tTIMEZONE")
			for _, c := range cities {
				fmt.Fprintf(tw, "%s\t%.4f\t%.4f\t%s\n", c.DisplayName(), c.Latitude, c.Longitude, c.Timezone)
			}
			return tw.Flush()
		},
	}
}

func newForecastCmd() *cobra.Command {
	var lat, lon float64
	var city string
	cmd := &cobra.Command{
		Use:   "forecast DATE",
		Short: "Show the daily forecast for a place (by --city or --lat/--lon)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			wx := newWeatherClient(&app{cfg: cfg}, nil)
			if city != "" {
				cities, err := wx.SearchCities(cmd.Context(), city)
				if err != nil {
					return err
				}
				if len(cities) == 0 {
					return fmt.Errorf("city %q not found", city)
				}
				lat, lon = cities[0].Latitude, cities[0].Longitude
				fmt.Fprintln(cmd.OutOrStdout(), cities[0].DisplayName())
			}
			w, err := wx.Forecast(cmd.Context(), lat, lon, args[0])
			if err != nil {
				return err
			}
			if w == nil {
				return fmt.Errorf("no forecast for %s", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (code %d)\n", args[0], weatherText(w), w.WeatherCode)
			return nil
		},
	}
	cmd.Flags().Float64Var(&lat, "lat", 0, "Latitude")
	cmd.Flags().Float64Var(&lon, "lon", 0, "Longitude")
	cmd.Flags().StringVar(&city, "city", "", "Look the place up by name")
	return cmd
}

func newExportCmd() *cobra.Command {
	var out, from, to string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write events as an iCalendar file",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			events := a.events.All()
			if from != "" || to != "" {
				if to == "" {
					to = "9999-12-31"
				}
				events = a.events.InRange(from, to)
			}
			body := ics.Export(events, a.cfg.Location())
			if out == "" || out == "-" {
				_, err := io.WriteString(cmd.OutOrStdout(), body)
				return err
			}
			if err := os.WriteFile(out, []byte(body), 0o644); err != nil {
				return err
			}
			appLog.Info("exported events", "path", out, "count", len(events))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "-", "Output file, - for stdout")
	cmd.Flags().StringVar(&from, "from", "", "Range start (inclusive)")
	cmd.Flags().StringVar(&to, "to", "", "Range end (inclusive)")
	return cmd
}

func newImportCmd() *cobra.Command {
	var src ics.Source
	cmd := &cobra.Command{
		Use:   "import FILE.ics",
		Short: "Import the upcoming occurrences of a local iCalendar file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			if src.ID == "" {
				src.ID = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			}
			if src.Name == "" {
				src.Name = src.ID
			}
			syncer := ics.NewSyncer(nil, a.events, a.cfg.Location())
			res, err := syncer.Import(cmd.Context(), src, body)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %d, updated %d, unchanged %d, removed %d\n", res.Created, res.Updated, res.Unchanged, res.Removed)
			return nil
		},
	}
	cmd.Flags().StringVar(&src.ID, "source-id", "", "Id prefix for imported events (default: file name)")
	cmd.Flags().StringVar(&src.Name, "name", "", "Source name used as city fallback")
	cmd.Flags().StringVar(&src.Calendar, "calendar", "personal", "Calendar id for imported events")
	cmd.Flags().StringVar(&src.Color, "color", string(model.ColorBlue), "Color tag for imported events")
	return cmd
}

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Sync the configured ICS subscriptions once",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			if len(a.cfg.ICS) == 0 {
				return errors.New("no ics subscriptions configured")
			}
			syncer := ics.NewSyncer(ics.NewFetcher(a.icsCacheDir(), nil), a.events, a.cfg.Location())
			res, err := syncer.Sync(cmd.Context(), ics.SourcesFromConfig(a.cfg.ICS))
			fmt.Fprintf(cmd.OutOrStdout(), "created %d, updated %d, unchanged %d, removed %d\n", res.Created, res.Updated, res.Unchanged, res.Removed)
			return err
		},
	}
}
