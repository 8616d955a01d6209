package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"conti/internal/core"
	"conti/internal/services"
	"conti/internal/split"
)

var errUsage = errors.New("usage")

type app struct {
	groups    *services.GroupService
	expenses  *services.ExpenseService
	ledger    *services.LedgerService
	recurring *services.RecurringService
	out       io.Writer
	now       func() time.Time
}

type command struct {
	name  string
	usage string
	run   func(a *app, ctx context.Context, args []string) error
}

var commands = []command{
	{"split", "preview how an amount splits between participants", (*app).cmdSplit},
	{"balances", "show each member's net balance", (*app).cmdBalances},
	{"statement", "show paid, share, sent and received per member", (*app).cmdStatement},
	{"plan", "propose transfers that settle the group", (*app).cmdPlan},
	{"settle", "plan and record the settling payments", (*app).cmdSettle},
	{"add-group", "create a group with its founding admin", (*app).cmdAddGroup},
	{"add-member", "add or update a group member", (*app).cmdAddMember},
	{"add-expense", "record an expense", (*app).cmdAddExpense},
	{"add-payment", "record a payment between two members", (*app).cmdAddPayment},
	{"add-template", "define a recurring expense", (*app).cmdAddTemplate},
	{"toggle-template", "pause or resume a recurring expense", (*app).cmdToggleTemplate},
	{"materialize", "record recurring occurrences due by a date", (*app).cmdMaterialize},
	{"upcoming", "list the next due date of every active template", (*app).cmdUpcoming},
	{"audit", "list recent changes to a group", (*app).cmdAudit},
}

func (a *app) run(ctx context.Context, args []string) error {
	if a.now == nil {
		a.now = time.Now
	}
	if len(args) == 0 {
		a.usage()
		return errUsage
	}
	for _, c := range commands {
		if c.name == args[0] {
			return c.run(a, ctx, args[1:])
		}
	}
	fmt.Fprintf(a.out, "unknown command %q\n\n", args[0])
	a.usage()
	return errUsage
}

func (a *app) usage() {
	fmt.Fprintln(a.out, "usage: conti <command> [flags]")
	fmt.Fprintln(a.out)
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	for _, c := range commands {
		fmt.Fprintf(w, "  %s\t%s\n", c.name, c.usage)
	}
	w.Flush()
}

func (a *app) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.out)
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	return nil
}

// required reports the first empty flag among names.
func required(fs *flag.FlagSet, names ...string) error {
	for _, n := range names {
		f := fs.Lookup(n)
		if f == nil || strings.TrimSpace(f.Value.String()) == "" {
			return fmt.Errorf("missing required flag -%s", n)
		}
	}
	return nil
}

// splitFlags are shared by add-expense, add-template and split.
type splitFlags struct {
	amount       string
	method       string
	participants string
	shares       string
}

func (s *splitFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&s.amount, "amount", "", "amount in major units, e.g. 12.50")
	fs.StringVar(&s.method, "method", string(core.SplitEqual), "split method: equal or exact")
	fs.StringVar(&s.participants, "participants", "", "comma separated member IDs (equal splits)")
	fs.StringVar(&s.shares, "shares", "", "comma separated member=amount pairs (exact splits)")
}

func (s *splitFlags) parse() (core.Money, []string, core.SplitMethod, []core.Split, error) {
	cents, err := core.ParseDecimalToCents(s.amount)
	if err != nil {
		return core.Money{}, nil, "", nil, fmt.Errorf("amount %q: %w", s.amount, err)
	}
	shares, err := parseShares(s.shares)
	if err != nil {
		return core.Money{}, nil, "", nil, err
	}
	return core.Money{Cents: cents}, parseList(s.participants), core.SplitMethod(s.method), shares, nil
}

func parseList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseShares reads "A=10.00,B=5.50".
func parseShares(s string) ([]core.Split, error) {
	var out []core.Split
	for _, pair := range parseList(s) {
		id, amt, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("share %q: want member=amount", pair)
		}
		cents, err := core.ParseShareToCents(amt)
		if err != nil {
			return nil, fmt.Errorf("share %q: %w", pair, err)
		}
		out = append(out, core.Split{MemberID: strings.TrimSpace(id), Share: core.Money{Cents: cents}})
	}
	return out, nil
}

// parseDate returns the zero Date for an empty string.
func parseDate(s string) (core.Date, error) {
	if strings.TrimSpace(s) == "" {
		return core.Date{}, nil
	}
	return core.ParseDate(s)
}

func (a *app) table(header ...string) *tabwriter.Writer {
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, strings.Join(header, "\t")+"\t")
	return w
}

func (a *app) cmdSplit(_ context.Context, args []string) error {
	fs := a.flags("split")
	var sf splitFlags
	sf.register(fs)
	if err := parse(fs, args); err != nil {
		return err
	}
	amount, participants, method, shares, err := sf.parse()
	if err != nil {
		return err
	}
	splits, err := split.Compute(amount, participants, method, shares)
	if err != nil {
		return err
	}
	w := a.table("member", "share")
	for _, s := range splits {
		fmt.Fprintf(w, "%s\t%s\t\n", s.MemberID, s.Share)
	}
	return w.Flush()
}

func (a *app) cmdBalances(ctx context.Context, args []string) error {
	fs := a.flags("balances")
	group := fs.String("group", "", "group ID")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required(fs, "group"); err != nil {
		return err
	}
	b, err := a.ledger.ComputeBalances(ctx, *group)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(b))
	for id := range b {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	w := a.table("member", "balance")
	for _, id := range ids {
		fmt.Fprintf(w, "%s\t%s\t\n", id, core.FormatCents(b[id]))
	}
	return w.Flush()
}

func (a *app) cmdStatement(ctx context.Context, args []string) error {
	fs := a.flags("statement")
	group := fs.String("group", "", "group ID")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required(fs, "group"); err != nil {
		return err
	}
	statements, err := a.ledger.Statements(ctx, *group)
	if err != nil {
		return err
	}
	w := a.table("member", "paid", "share", "sent", "received", "net")
	for _, s := range statements {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t\n",
			s.MemberID, s.Paid, s.Share, s.Sent, s.Received, core.FormatCents(s.Net))
	}
	return w.Flush()
}

func (a *app) printTransfers(transfers []core.Transfer) error {
	if len(transfers) == 0 {
		fmt.Fprintln(a.out, "nothing to settle")
		return nil
	}
	w := a.table("from", "to", "amount")
	for _, t := range transfers {
		fmt.Fprintf(w, "%s\t%s\t%s\t\n", t.FromMemberID, t.ToMemberID, t.Amount)
	}
	return w.Flush()
}

func (a *app) cmdPlan(ctx context.Context, args []string) error {
	fs := a.flags("plan")
	group := fs.String("group", "", "group ID")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required(fs, "group"); err != nil {
		return err
	}
	plan, err := a.ledger.PlanSettlement(ctx, *group)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "group %s at version %d\n", plan.GroupID, plan.Version)
	return a.printTransfers(plan.Transfers)
}

func (a *app) cmdSettle(ctx context.Context, args []string) error {
	fs := a.flags("settle")
	group := fs.String("group", "", "group ID")
	actor := fs.String("actor", "", "member performing the settlement")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required(fs, "group", "actor"); err != nil {
		return err
	}
	plan, payments, err := a.ledger.SettleUp(ctx, *group, *actor)
	if err != nil {
		return err
	}
	if err := a.printTransfers(plan.Transfers); err != nil {
		return err
	}
	if len(payments) > 0 {
		fmt.Fprintf(a.out, "recorded %d payments totalling %s\n", len(payments), plan.Total())
	}
	return nil
}

func (a *app) cmdAddGroup(ctx context.Context, args []string) error {
	fs := a.flags("add-group")
	id := fs.String("id", "", "group ID (generated when empty)")
	name := fs.String("name", "", "group name")
	founder := fs.String("founder", "", "founding member ID, becomes admin")
	founderName := fs.String("founder-name", "", "founding member display name")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required(fs, "name", "founder"); err != nil {
		return err
	}
	g, err := a.groups.CreateGroup(ctx,
		core.Group{ID: *id, Name: *name},
		core.Member{ID: *founder, DisplayName: *founderName})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "created group %s\n", g.ID)
	return nil
}

func (a *app) cmdAddMember(ctx context.Context, args []string) error {
	fs := a.flags("add-member")
	group := fs.String("group", "", "group ID")
	actor := fs.String("actor", "", "admin adding the member")
	member := fs.String("member", "", "member ID")
	name := fs.String("name", "", "display name")
	role := fs.String("role", string(core.RoleMember), "admin or member")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required(fs, "group", "actor", "member"); err != nil {
		return err
	}
	if !core.Role(*role).Valid() {
		return fmt.Errorf("invalid role %q", *role)
	}
	m := core.Member{ID: *member, GroupID: *group, DisplayName: *name, Role: core.Role(*role)}
	if err := a.groups.AddMember(ctx, *actor, m); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "added %s to %s as %s\n", m.ID, m.GroupID, m.Role)
	return nil
}

func (a *app) cmdAddExpense(ctx context.Context, args []string) error {
	fs := a.flags("add-expense")
	group := fs.String("group", "", "group ID")
	actor := fs.String("actor", "", "member recording the expense")
	payer := fs.String("payer", "", "member who paid (defaults to actor)")
	desc := fs.String("desc", "", "description")
	date := fs.String("date", "", "date as YYYY-MM-DD (default today)")
	var sf splitFlags
	sf.register(fs)
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required(fs, "group", "actor", "desc", "amount"); err != nil {
		return err
	}
	amount, participants, method, shares, err := sf.parse()
	if err != nil {
		return err
	}
	d, err := parseDate(*date)
	if err != nil {
		return err
	}
	if *payer == "" {
		*payer = *actor
	}
	e, version, err := a.expenses.RecordExpense(ctx, services.ExpenseInput{
		GroupID:        *group,
		ActorID:        *actor,
		PayerID:        *payer,
		Description:    *desc,
		Amount:         amount,
		Date:           d,
		SplitMethod:    method,
		ParticipantIDs: participants,
		Shares:         shares,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "recorded expense %s (%s) at version %d\n", e.ID, e.Amount, version)
	return nil
}

func (a *app) cmdAddPayment(ctx context.Context, args []string) error {
	fs := a.flags("add-payment")
	group := fs.String("group", "", "group ID")
	actor := fs.String("actor", "", "member recording the payment (defaults to sender)")
	from := fs.String("from", "", "member sending money")
	to := fs.String("to", "", "member receiving money")
	amount := fs.String("amount", "", "amount in major units")
	date := fs.String("date", "", "date as YYYY-MM-DD (default today)")
	note := fs.String("note", "", "free text note")
	expense := fs.String("expense", "", "expense this payment settles")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required(fs, "group", "from", "to", "amount"); err != nil {
		return err
	}
	cents, err := core.ParseDecimalToCents(*amount)
	if err != nil {
		return fmt.Errorf("amount %q: %w", *amount, err)
	}
	d, err := parseDate(*date)
	if err != nil {
		return err
	}
	if *actor == "" {
		*actor = *from
	}
	p, version, err := a.expenses.RecordPayment(ctx, services.PaymentInput{
		GroupID:         *group,
		ActorID:         *actor,
		FromMemberID:    *from,
		ToMemberID:      *to,
		Amount:          core.Money{Cents: cents},
		Date:            d,
		LinkedExpenseID: *expense,
		Note:            *note,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "recorded payment %s (%s) at version %d\n", p.ID, p.Amount, version)
	return nil
}

func (a *app) cmdAddTemplate(ctx context.Context, args []string) error {
	fs := a.flags("add-template")
	id := fs.String("id", "", "template ID (generated when empty)")
	group := fs.String("group", "", "group ID")
	actor := fs.String("actor", "", "admin defining the template")
	payer := fs.String("payer", "", "member who pays each occurrence (defaults to actor)")
	desc := fs.String("desc", "", "description")
	freq := fs.String("frequency", string(core.Monthly), "daily, weekly, monthly or yearly")
	start := fs.String("start", "", "first occurrence as YYYY-MM-DD (default today)")
	end := fs.String("end", "", "last possible occurrence as YYYY-MM-DD")
	paused := fs.Bool("paused", false, "create the template inactive")
	var sf splitFlags
	sf.register(fs)
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required(fs, "group", "actor", "desc", "amount"); err != nil {
		return err
	}
	amount, participants, method, shares, err := sf.parse()
	if err != nil {
		return err
	}
	startDate, err := parseDate(*start)
	if err != nil {
		return err
	}
	endDate, err := parseDate(*end)
	if err != nil {
		return err
	}
	if *payer == "" {
		*payer = *actor
	}
	t, err := a.recurring.SaveTemplate(ctx, services.TemplateInput{
		ID:             *id,
		GroupID:        *group,
		ActorID:        *actor,
		PayerID:        *payer,
		Description:    *desc,
		Amount:         amount,
		SplitMethod:    method,
		ParticipantIDs: participants,
		Shares:         shares,
		Frequency:      core.Frequency(*freq),
		StartDate:      startDate,
		EndDate:        endDate,
		Active:         !*paused,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "saved template %s (%s from %s)\n", t.ID, t.Frequency, t.StartDate)
	return nil
}

func (a *app) cmdToggleTemplate(ctx context.Context, args []string) error {
	fs := a.flags("toggle-template")
	actor := fs.String("actor", "", "admin toggling the template")
	template := fs.String("template", "", "template ID")
	active := fs.Bool("active", true, "resume (true) or pause (false)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required(fs, "actor", "template"); err != nil {
		return err
	}
	if err := a.recurring.SetTemplateActive(ctx, *actor, *template, *active); err != nil {
		return err
	}
	state := "paused"
	if *active {
		state = "active"
	}
	fmt.Fprintf(a.out, "template %s is %s\n", *template, state)
	return nil
}

func (a *app) cmdMaterialize(ctx context.Context, args []string) error {
	fs := a.flags("materialize")
	template := fs.String("template", "", "template ID (all active templates when empty)")
	asOf := fs.String("as-of", "", "materialize occurrences due by YYYY-MM-DD (default today)")
	if err := parse(fs, args); err != nil {
		return err
	}
	d, err := parseDate(*asOf)
	if err != nil {
		return err
	}
	if d.IsZero() {
		d = core.DateOf(a.now())
	}

	if *template == "" {
		n, err := a.recurring.ProcessDue(ctx, d.Time)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "recorded %d occurrences\n", n)
		return nil
	}

	created, err := a.recurring.MaterializeRecurringOccurrences(ctx, *template, d)
	if err != nil {
		return err
	}
	for _, e := range created {
		fmt.Fprintf(a.out, "%s\t%s\t%s\n", e.Date, e.Description, e.Amount)
	}
	fmt.Fprintf(a.out, "recorded %d occurrences\n", len(created))
	return nil
}

func (a *app) cmdUpcoming(ctx context.Context, args []string) error {
	fs := a.flags("upcoming")
	asOf := fs.String("as-of", "", "reference date as YYYY-MM-DD (default today)")
	if err := parse(fs, args); err != nil {
		return err
	}
	d, err := parseDate(*asOf)
	if err != nil {
		return err
	}
	if d.IsZero() {
		d = core.DateOf(a.now())
	}
	next, err := a.recurring.Upcoming(ctx, d)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(next))
	for id := range next {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	w := a.table("template", "next")
	for _, id := range ids {
		fmt.Fprintf(w, "%s\t%s\t\n", id, next[id])
	}
	return w.Flush()
}

func (a *app) cmdAudit(ctx context.Context, args []string) error {
	fs := a.flags("audit")
	group := fs.String("group", "", "group ID")
	actor := fs.String("actor", "", "member reading the log")
	limit := fs.Int("limit", 20, "maximum number of entries")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required(fs, "group", "actor"); err != nil {
		return err
	}
	entries, err := a.groups.Audit(ctx, *group, *actor, *limit)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "at\tactor\taction\tdetails")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.At.UTC().Format(time.RFC3339), e.ActorID, e.Action, e.Details)
	}
	return w.Flush()
}
