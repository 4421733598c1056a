package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/xid"
)

const slotStep = 30 * time.Minute

func (s *Service) AvailableSlots(ctx context.Context, storeID string, staffUsername string, serviceID string, date string) (domain.AvailabilityResponse, error) {
	st, err := s.resolveStore(ctx, storeID)
	if err != nil {
		return domain.AvailabilityResponse{}, err
	}
	staffUsername = strings.TrimSpace(staffUsername)
	if err := s.requireStylist(ctx, staffUsername); err != nil {
		return domain.AvailabilityResponse{}, err
	}
	svc, err := s.bookableService(ctx, serviceID)
	if err != nil {
		return domain.AvailabilityResponse{}, err
	}

	loc := st.Location()
	day, _, err := s.dayRange(date, loc)
	if err != nil {
		return domain.AvailabilityResponse{}, err
	}
	open, closing := openingHours(st, day)
	duration := time.Duration(svc.DurationMinutes) * time.Minute

	booked, err := s.repo.ListAppointments(ctx, st.ID, staffUsername, open, closing)
	if err != nil {
		return domain.AvailabilityResponse{}, err
	}
	booked = slices.DeleteFunc(booked, func(a domain.Appointment) bool { return !occupiesSlot(a.Status) })

	now := s.now()
	slots := make([]string, 0, 24)
	for start := open; !start.Add(duration).After(closing); start = start.Add(slotStep) {
		if start.Before(now) {
			continue
		}
		end := start.Add(duration)
		taken := slices.ContainsFunc(booked, func(a domain.Appointment) bool { return a.Overlaps(start, end) })
		if !taken {
			slots = append(slots, start.Format(time.RFC3339))
		}
	}

	return domain.AvailabilityResponse{
		StoreID:       st.ID,
		StaffUsername: staffUsername,
		ServiceID:     svc.ID,
		Date:          day.Format(time.DateOnly),
		Slots:         slots,
	}, nil
}

func (s *Service) BookAppointment(ctx context.Context, req domain.AppointmentCreateRequest) (domain.Appointment, error) {
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	req.StaffUsername = strings.TrimSpace(req.StaffUsername)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.Notes = strings.TrimSpace(req.Notes)
	if err := s.check(req); err != nil {
		return domain.Appointment{}, err
	}

	st, err := s.resolveStore(ctx, req.StoreID)
	if err != nil {
		return domain.Appointment{}, err
	}
	if _, err := s.repo.GetCustomer(ctx, req.CustomerID); err != nil {
		return domain.Appointment{}, fmt.Errorf("customer %s: %w", req.CustomerID, err)
	}
	if err := s.requireStylist(ctx, req.StaffUsername); err != nil {
		return domain.Appointment{}, err
	}
	svc, err := s.bookableService(ctx, req.ServiceID)
	if err != nil {
		return domain.Appointment{}, err
	}

	start := req.StartsAt.In(st.Location())
	end := start.Add(time.Duration(svc.DurationMinutes) * time.Minute)
	if !start.After(s.now()) {
		return domain.Appointment{}, invalidf("startsAt must be in the future")
	}
	open, closing := openingHours(st, start)
	if start.Before(open) || end.After(closing) {
		return domain.Appointment{}, invalidf("appointment must fit within opening hours %02d:00-%02d:00", st.OpenHour, st.CloseHour)
	}

	created, err := s.repo.CreateAppointment(ctx, domain.Appointment{
		ID:            xid.New("appt"),
		StoreID:       st.ID,
		CustomerID:    req.CustomerID,
		StaffUsername: req.StaffUsername,
		ServiceID:     svc.ID,
		StartsAt:      start.UTC(),
		EndsAt:        end.UTC(),
		Status:        domain.AppointmentBooked,
		Notes:         req.Notes,
		CreatedAt:     s.now(),
	})
	if err != nil {
		return domain.Appointment{}, err
	}

	s.logAudit(ctx, st.ID, "appointment_book", "appointment", created.ID, fmt.Sprintf("staff=%s,service=%s,start=%s", created.StaffUsername, created.ServiceID, created.StartsAt.Format(time.RFC3339)))
	return *created, nil
}

func (s *Service) ListAppointments(ctx context.Context, storeID string, staffUsername string, date string) ([]domain.Appointment, error) {
	st, err := s.resolveStore(ctx, storeID)
	if err != nil {
		return nil, err
	}
	from, to, err := s.dayRange(date, st.Location())
	if err != nil {
		return nil, err
	}
	return s.repo.ListAppointments(ctx, st.ID, strings.TrimSpace(staffUsername), from, to)
}

// UpdateAppointmentStatus moves a booked appointment to a terminal status.
func (s *Service) UpdateAppointmentStatus(ctx context.Context, appointmentID string, req domain.AppointmentStatusRequest) (domain.Appointment, error) {
	req.Status = strings.ToLower(strings.TrimSpace(req.Status))
	if err := s.check(req); err != nil {
		return domain.Appointment{}, err
	}

	appt, err := s.repo.GetAppointment(ctx, strings.TrimSpace(appointmentID))
	if err != nil {
		return domain.Appointment{}, err
	}
	if appt.Status == req.Status {
		return *appt, nil
	}
	if appt.Status != domain.AppointmentBooked {
		return domain.Appointment{}, invalidf("appointment is already %s", appt.Status)
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, req.Status)
	if err != nil {
		return domain.Appointment{}, err
	}

	s.logAudit(ctx, updated.StoreID, "appointment_status", "appointment", updated.ID, "status="+updated.Status)
	return *updated, nil
}

func (s *Service) bookableService(ctx context.Context, serviceID string) (domain.ServiceOffering, error) {
	serviceID = strings.TrimSpace(serviceID)
	if serviceID == "" {
		return domain.ServiceOffering{}, invalidf("serviceId is required")
	}
	services, err := s.repo.GetServicesByIDs(ctx, []string{serviceID})
	if err != nil {
		return domain.ServiceOffering{}, err
	}
	svc, ok := services[serviceID]
	if !ok || !svc.Active {
		return domain.ServiceOffering{}, invalidf("service %s is not available", serviceID)
	}
	return svc, nil
}

func (s *Service) requireStylist(ctx context.Context, username string) error {
	if username == "" {
		return invalidf("staffUsername is required")
	}
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return err
	}
	for _, u := range users {
		if u.Username == username && u.Active && u.Role == domain.RoleStylist {
			return nil
		}
	}
	return invalidf("%s is not an active stylist", username)
}

// openingHours returns the store's open and close instants on the local day of t.
func openingHours(st domain.Store, t time.Time) (time.Time, time.Time) {
	local := t.In(st.Location())
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
	return day.Add(time.Duration(st.OpenHour) * time.Hour), day.Add(time.Duration(st.CloseHour) * time.Hour)
}

func occupiesSlot(status string) bool {
	return status == domain.AppointmentBooked || status == domain.AppointmentCompleted
}
