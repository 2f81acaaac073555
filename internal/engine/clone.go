package engine

// Structural clones for the draft payload types. Each Clone copies every
// nested slice and map so the result shares no mutable state with the
// source. A serialize-then-parse round trip would silently drop fields a
// codec cannot represent; these copies are explicit and tested instead.

// Clone returns a deep copy of the draft.
func (d *Draft) Clone() *Draft {
	if d == nil {
		return nil
	}

	out := *d
	out.Patients = d.Patients.Clone()
	out.Incident = d.Incident.Clone()
	out.Injuries = d.Injuries.Clone()

	if d.InternalReportID != nil {
		id := *d.InternalReportID
		out.InternalReportID = &id
	}

	return &out
}

// Clone returns a deep copy of the patient list.
func (pl PatientList) Clone() PatientList {
	if pl == nil {
		return nil
	}

	out := make(PatientList, len(pl))
	for i := range pl {
		out[i] = pl[i].Clone()
	}

	return out
}

// Clone returns a deep copy of a patient record.
func (p PatientRecord) Clone() PatientRecord {
	out := p

	if p.Interventions != nil {
		out.Interventions = make([]string, len(p.Interventions))
		copy(out.Interventions, p.Interventions)
	}

	if p.Vitals != nil {
		out.Vitals = make([]VitalReading, len(p.Vitals))
		copy(out.Vitals, p.Vitals)
	}

	return out
}

// Clone returns a deep copy of the incident details.
func (in *IncidentDetails) Clone() *IncidentDetails {
	if in == nil {
		return nil
	}

	out := *in

	if in.Latitude != nil {
		v := *in.Latitude
		out.Latitude = &v
	}

	if in.Longitude != nil {
		v := *in.Longitude
		out.Longitude = &v
	}

	return &out
}

// Clone returns a deep copy of an injury set.
func (s InjurySet) Clone() InjurySet {
	if s == nil {
		return nil
	}

	out := make(InjurySet, len(s))
	for k, v := range s {
		out[k] = v
	}

	return out
}

// Clone returns a deep copy of the injury map.
func (m InjuryMap) Clone() InjuryMap {
	return InjuryMap{
		Front: m.Front.Clone(),
		Back:  m.Back.Clone(),
	}
}
